package shader

import (
	_ "embed"
	"errors"
	"strings"
)

//go:embed shaders/prelude.wgsl
var preludeSource string

//go:embed shaders/vertex.wgsl
var vertexTemplate string

// Generator produces the stage sources for a composition signature. The
// cache treats the result as opaque compiler input.
type Generator interface {
	Generate(sig Signature) (vertex, fragment string, err error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(sig Signature) (vertex, fragment string, err error)

// Generate calls f(sig).
func (f GeneratorFunc) Generate(sig Signature) (string, string, error) {
	return f(sig)
}

// Texture units of the sampler convention shared by every generated
// program. The table is static and bound once per program.
const (
	SourceUnit = 0
	MaskUnit   = 1
)

// Uniform names of generated programs.
const (
	UniformViewport       = "viewport"
	UniformSourceConstant = "source_constant"
	UniformMaskConstant   = "mask_constant"
	UniformSourceTexdims  = "source_texdims"
	UniformMaskTexdims    = "mask_texdims"
	UniformSourceA        = "source_a"
	UniformSourceCircleD  = "source_circle_d"
	UniformSourceRadius0  = "source_radius_0"
	UniformMaskA          = "mask_a"
	UniformMaskCircleD    = "mask_circle_d"
	UniformMaskRadius0    = "mask_radius_0"
	UniformSourceMatrix   = "source_matrix"
	UniformMaskMatrix     = "mask_matrix"
	UniformSourceSampler  = "source_sampler"
	UniformMaskSampler    = "mask_sampler"
)

// UniformSlot is the position of one named uniform inside the uniform block
// declared by the prelude.
type UniformSlot struct {
	Name   string
	Offset int // bytes
	Size   int // bytes
}

// UniformBlockSize is the byte size of the uniform block.
const UniformBlockSize = 11*16 + 2*48

// UniformLayout lists the uniform block in declaration order. Every vec4
// slot is 16 bytes; mat3x3 occupies three 16-byte columns.
var UniformLayout = func() []UniformSlot {
	vec4s := []string{
		UniformViewport,
		UniformSourceConstant,
		UniformMaskConstant,
		UniformSourceTexdims,
		UniformMaskTexdims,
		UniformSourceA,
		UniformSourceCircleD,
		UniformSourceRadius0,
		UniformMaskA,
		UniformMaskCircleD,
		UniformMaskRadius0,
	}
	slots := make([]UniformSlot, 0, len(vec4s)+2)
	off := 0
	for _, name := range vec4s {
		slots = append(slots, UniformSlot{Name: name, Offset: off, Size: 16})
		off += 16
	}
	for _, name := range []string{UniformSourceMatrix, UniformMaskMatrix} {
		slots = append(slots, UniformSlot{Name: name, Offset: off, Size: 48})
		off += 48
	}
	return slots
}()

// LookupSlot returns the layout slot of a uniform name.
func LookupSlot(name string) (UniformSlot, bool) {
	for _, s := range UniformLayout {
		if s.Name == name {
			return s, true
		}
	}
	return UniformSlot{}, false
}

// WGSLGenerator is the default Generator. Each stage is a complete WGSL
// module with entry points vs_main and fs_main.
type WGSLGenerator struct{}

// Generate implements Generator.
func (WGSLGenerator) Generate(sig Signature) (string, string, error) {
	if sig.Source.VertexCoords() && sig.Mask.VertexCoords() {
		return "", "", errors.New("shader: source and mask cannot both use vertex texture coordinates")
	}
	if sig.Combine != CombineNormal && sig.Mask == OperandNone {
		return "", "", errors.New("shader: component alpha needs a mask operand")
	}

	vertex := strings.NewReplacer(
		"SOURCE_COORDS", coordsExpr(sig.Source, "source"),
		"MASK_COORDS", coordsExpr(sig.Mask, "mask"),
	).Replace(vertexTemplate)

	var fs strings.Builder
	fs.WriteString(preludeSource)
	fs.WriteString("\n")
	writeOperand(&fs, "source", sig.Source, sig.SourceBorderFade)
	writeOperand(&fs, "mask", sig.Mask, sig.MaskBorderFade)
	fs.WriteString("@fragment\nfn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {\n")
	fs.WriteString("    let src = get_source(in.source_texcoords);\n")
	fs.WriteString("    let coverage = get_mask(in.mask_texcoords);\n")
	switch sig.Combine {
	case CombineComponentAlpha:
		fs.WriteString("    return src * coverage * in.color.a;\n")
	case CombineComponentAlphaSource:
		fs.WriteString("    return src.a * coverage * in.color.a;\n")
	default:
		fs.WriteString("    return src * coverage.a * in.color.a;\n")
	}
	fs.WriteString("}\n")

	return preludeSource + "\n" + vertex, fs.String(), nil
}

func coordsExpr(kind OperandKind, name string) string {
	switch {
	case kind.VertexCoords():
		return "in.texcoord"
	case kind.Samples():
		return "(u." + name + "_matrix * vec3<f32>(in.position, 1.0)).xy"
	default:
		return "vec2<f32>(0.0)"
	}
}

// writeOperand emits fn get_<name>(coords: vec2<f32>) -> vec4<f32>.
func writeOperand(b *strings.Builder, name string, kind OperandKind, borderFade bool) {
	r := strings.NewReplacer("NAME", name)
	w := func(s string) { b.WriteString(r.Replace(s)) }

	w("fn get_NAME(coords: vec2<f32>) -> vec4<f32> {\n")
	switch kind {
	case OperandNone:
		if name == "mask" {
			w("    return vec4<f32>(1.0);\n")
		} else {
			w("    return vec4<f32>(0.0);\n")
		}
	case OperandConstant:
		w("    return u.NAME_constant;\n")
	case OperandTexture, OperandAtlas:
		w("    let color = textureSample(NAME_texture, NAME_sampler, coords);\n")
		if borderFade {
			// Fade to transparent over the half texel outside the image.
			w("    let border = clamp((min(coords, vec2<f32>(1.0) - coords) * u.NAME_texdims.xy) + vec2<f32>(0.5), vec2<f32>(0.0), vec2<f32>(1.0));\n")
			w("    return color * border.x * border.y;\n")
		} else {
			w("    return color;\n")
		}
	case OperandAlphaAtlas:
		w("    return vec4<f32>(textureSample(NAME_texture, NAME_sampler, coords).r);\n")
	case OperandLinearGradient:
		if borderFade {
			// Extend none: transparent outside [0, 1].
			w("    return NAME_ramp(coords.x) * step(0.0, coords.x) * step(coords.x, 1.0);\n")
		} else {
			w("    return NAME_ramp(coords.x);\n")
		}
	case OperandRadialGradientA0:
		w("    let b = dot(coords, u.NAME_circle_d.xy) + u.NAME_radius_0.x * u.NAME_circle_d.z;\n")
		w("    let c = dot(coords, coords) - u.NAME_radius_0.x * u.NAME_radius_0.x;\n")
		w("    let t = 0.5 * c / b;\n")
		w("    let valid = step(-u.NAME_radius_0.x, t * u.NAME_circle_d.z);\n")
		w("    return NAME_ramp(t) * valid;\n")
	case OperandRadialGradientNone, OperandRadialGradientExt:
		w("    let b = dot(coords, u.NAME_circle_d.xy) + u.NAME_radius_0.x * u.NAME_circle_d.z;\n")
		w("    let c = dot(coords, coords) - u.NAME_radius_0.x * u.NAME_radius_0.x;\n")
		w("    let det = b * b - u.NAME_a.x * c;\n")
		w("    let root = sqrt(abs(det));\n")
		w("    let t0 = (b + root) / u.NAME_a.x;\n")
		w("    let t1 = (b - root) / u.NAME_a.x;\n")
		w("    let valid0 = step(-u.NAME_radius_0.x, t0 * u.NAME_circle_d.z);\n")
		w("    let valid1 = step(-u.NAME_radius_0.x, t1 * u.NAME_circle_d.z);\n")
		w("    let t = mix(t1, t0, valid0);\n")
		w("    var valid = max(valid0, valid1) * step(0.0, det);\n")
		if kind == OperandRadialGradientExt {
			w("    valid = step(0.0, det);\n")
		}
		w("    return NAME_ramp(t) * valid;\n")
	}
	w("}\n\n")

	if kind.IsGradient() {
		// Ramps are sampled at the texel centres of a one-row texture; the
		// sampler address mode applies the extend.
		w("fn NAME_ramp(t: f32) -> vec4<f32> {\n")
		w("    let x = (t * (u.NAME_texdims.x - 1.0) + 0.5) / u.NAME_texdims.x;\n")
		w("    return textureSample(NAME_texture, NAME_sampler, vec2<f32>(x, 0.5));\n")
		w("}\n\n")
	}
}
