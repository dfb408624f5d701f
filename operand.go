package compositor

import (
	"fmt"
	"math"

	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/gradient"
	"github.com/gogpu/gputypes"
)

// GradientStop is a color stop of a gradient operand. Colors are straight
// (not premultiplied) sRGB.
type GradientStop = gradient.Stop

type operandType uint8

const (
	typeNone operandType = iota
	typeSolid
	typeTexture
	typeLinear
	typeRadial
	typeAtlas
)

// Operand describes a source or mask of a composite. Operands are values;
// gradient stops are copied into the ramp cache when the operand is set.
type Operand struct {
	typ     operandType
	color   gputypes.Color
	tex     driver.TextureID
	width   int
	height  int
	sampler driver.SamplerState
	matrix  Matrix
	stops   []GradientStop
	extend  driver.Extend
	dx, dy  float64
	r0, r1  float64
	atlas   *atlas.Atlas
	ca      bool
}

// None returns the empty operand: transparent as a source, full coverage
// as a mask.
func None() Operand { return Operand{} }

// Solid returns a constant color operand. c is straight alpha.
func Solid(c gputypes.Color) Operand {
	return Operand{typ: typeSolid, color: c}
}

// Texture returns an operand sampling a width x height texture. m maps
// device pixels to normalized texture coordinates; see TextureMatrix. With
// ExtendNone the texture fades to transparent outside its bounds.
func Texture(tex driver.TextureID, width, height int, sampler driver.SamplerState, m Matrix) Operand {
	return Operand{typ: typeTexture, tex: tex, width: width, height: height, sampler: sampler, matrix: m}
}

// LinearGradient returns an operand whose color is looked up in the stop
// ramp at the x coordinate of m applied to the device position.
func LinearGradient(stops []GradientStop, extend driver.Extend, m Matrix) Operand {
	return Operand{typ: typeLinear, stops: stops, extend: extend, matrix: m}
}

// RadialGradient returns a two-circle radial gradient. m maps device
// pixels to the plane where the start circle of radius r0 is centered at
// the origin; (dx, dy) is the center of the end circle, of radius r1.
func RadialGradient(stops []GradientStop, extend driver.Extend, m Matrix, dx, dy, r0, r1 float64) Operand {
	return Operand{typ: typeRadial, stops: stops, extend: extend, matrix: m, dx: dx, dy: dy, r0: r0, r1: r1}
}

// AtlasOperand returns an operand sampling a at the per-vertex texture
// coordinates, as glyph quads are drawn. Alpha-only atlases provide
// coverage in every component.
func AtlasOperand(a *atlas.Atlas) Operand {
	return Operand{typ: typeAtlas, atlas: a}
}

// ComponentAlpha returns o marked as a per-channel coverage mask, as used
// for subpixel glyphs. Only color texture and color atlas masks accept it.
func (o Operand) ComponentAlpha() Operand {
	o.ca = true
	return o
}

// operandState is the resolved, comparable form of an operand that is part
// of a batch setup.
type operandState struct {
	kind    OperandKind
	filter  driver.Filter
	fade    bool
	ca      bool
	tex     driver.TextureID
	sampler driver.SamplerState
	texdims [4]float32
	color   [4]float32
	matrix  [9]float32
	circleD [4]float32
	radius0 float32
	a       float32
}

// resolved is an operand set on the device, with the ramp reference it
// holds.
type resolved struct {
	st   operandState
	ramp *gradient.Ramp
}

func texdims(w, h int) [4]float32 {
	return [4]float32{float32(w), float32(h), 1 / float32(w), 1 / float32(h)}
}

// faded maps an extend to the sampler address mode used with it. Extend
// none is clamped and faded in the shader.
func faded(e driver.Extend) (driver.Extend, bool) {
	if e == driver.ExtendNone {
		return driver.ExtendPad, true
	}
	return e, false
}

// resolve turns o into device state, creating the gradient ramp if needed.
func (d *Device) resolve(o Operand, mask bool) (resolved, error) {
	if o.ca {
		if !mask {
			return resolved{}, fmt.Errorf("%w: compositor: component alpha source", ErrUnsupported)
		}
		if !d.caps.ComponentAlpha {
			return resolved{}, fmt.Errorf("%w: compositor: device has no component-alpha support", ErrUnsupported)
		}
	}

	switch o.typ {
	case typeNone:
		return resolved{st: operandState{kind: OperandNone}}, nil

	case typeSolid:
		c := o.color
		return resolved{st: operandState{
			kind:  OperandConstant,
			color: [4]float32{float32(c.R * c.A), float32(c.G * c.A), float32(c.B * c.A), float32(c.A)},
		}}, nil

	case typeTexture:
		if o.tex == driver.InvalidID || o.width <= 0 || o.height <= 0 {
			return resolved{}, fmt.Errorf("compositor: invalid texture operand %d (%dx%d)", o.tex, o.width, o.height)
		}
		extend, fade := faded(o.sampler.Extend)
		return resolved{st: operandState{
			kind:    OperandTexture,
			filter:  o.sampler.Filter,
			fade:    fade,
			ca:      o.ca,
			tex:     o.tex,
			sampler: driver.SamplerState{Filter: o.sampler.Filter, Extend: extend},
			texdims: texdims(o.width, o.height),
			matrix:  o.matrix.mat3(),
		}}, nil

	case typeLinear, typeRadial:
		if o.ca {
			return resolved{}, fmt.Errorf("%w: compositor: component-alpha gradient", ErrUnsupported)
		}
		ramp, err := d.ramps.GetOrCreate(o.stops)
		if err != nil {
			return resolved{}, err
		}
		extend, fade := faded(o.extend)
		st := operandState{
			kind:    OperandLinearGradient,
			filter:  driver.FilterLinear,
			tex:     ramp.Texture(),
			sampler: driver.SamplerState{Filter: driver.FilterLinear, Extend: extend},
			texdims: [4]float32{float32(ramp.Width()), 1, 1 / float32(ramp.Width()), 1},
			matrix:  o.matrix.mat3(),
		}
		if o.typ == typeLinear {
			st.fade = fade
			return resolved{st: st, ramp: ramp}, nil
		}

		dr := o.r1 - o.r0
		a := o.dx*o.dx + o.dy*o.dy - dr*dr
		switch {
		case math.Abs(a) < 1e-9:
			st.kind = OperandRadialGradientA0
			a = 0
		case o.extend == driver.ExtendNone:
			st.kind = OperandRadialGradientNone
		default:
			st.kind = OperandRadialGradientExt
		}
		st.circleD = [4]float32{float32(o.dx), float32(o.dy), float32(dr), 0}
		st.radius0 = float32(o.r0)
		st.a = float32(a)
		return resolved{st: st, ramp: ramp}, nil

	case typeAtlas:
		a := o.atlas
		if a == nil || a.IsClosed() {
			return resolved{}, atlas.ErrAtlasClosed
		}
		kind := OperandAtlas
		if a.Format() == gputypes.TextureFormatR8Unorm {
			if o.ca {
				return resolved{}, fmt.Errorf("%w: compositor: component alpha from an alpha-only atlas", ErrUnsupported)
			}
			kind = OperandAlphaAtlas
		}
		return resolved{st: operandState{
			kind:    kind,
			filter:  driver.FilterNearest,
			ca:      o.ca,
			tex:     a.Texture(),
			sampler: driver.SamplerState{Filter: driver.FilterNearest, Extend: driver.ExtendPad},
			texdims: texdims(a.Width(), a.Height()),
		}}, nil
	}
	return resolved{}, fmt.Errorf("compositor: unknown operand type %d", o.typ)
}

// release drops the ramp reference of r.
func (d *Device) release(r resolved) {
	if r.ramp != nil {
		d.ramps.Release(r.ramp)
	}
}
