package shader

import (
	"fmt"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/cache"
)

// OperandKind is the kind of a source or mask operand as seen by the
// generated fragment stage.
type OperandKind uint8

// Operand kinds.
const (
	// OperandNone contributes transparent black as a source or full
	// coverage as a mask.
	OperandNone OperandKind = iota
	// OperandConstant is a uniform premultiplied color.
	OperandConstant
	// OperandTexture samples a texture at matrix-transformed device
	// coordinates.
	OperandTexture
	// OperandAtlas samples a texture at the per-vertex texture coordinate.
	OperandAtlas
	// OperandAlphaAtlas is OperandAtlas over a single-channel texture; the
	// red channel is the coverage of every component.
	OperandAlphaAtlas
	// OperandLinearGradient samples a ramp at the x coordinate of the
	// matrix-transformed position.
	OperandLinearGradient
	// OperandRadialGradientA0 is a two-circle radial gradient whose
	// quadratic degenerates (equal radii deltas, a == 0).
	OperandRadialGradientA0
	// OperandRadialGradientNone is a radial gradient with extend none:
	// points outside both cones are transparent.
	OperandRadialGradientNone
	// OperandRadialGradientExt is a radial gradient with pad, repeat or
	// reflect extend.
	OperandRadialGradientExt
)

var operandNames = [...]string{
	OperandNone:               "none",
	OperandConstant:           "constant",
	OperandTexture:            "texture",
	OperandAtlas:              "atlas",
	OperandAlphaAtlas:         "alpha_atlas",
	OperandLinearGradient:     "linear",
	OperandRadialGradientA0:   "radial_a0",
	OperandRadialGradientNone: "radial_none",
	OperandRadialGradientExt:  "radial_ext",
}

// String returns the operand kind name.
func (k OperandKind) String() string {
	if int(k) < len(operandNames) {
		return operandNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// Samples reports whether the kind reads a texture.
func (k OperandKind) Samples() bool {
	return k >= OperandTexture
}

// VertexCoords reports whether the kind reads the per-vertex texture
// coordinate instead of transforming the position.
func (k OperandKind) VertexCoords() bool {
	return k == OperandAtlas || k == OperandAlphaAtlas
}

// IsGradient reports whether the kind samples a gradient ramp.
func (k OperandKind) IsGradient() bool {
	return k >= OperandLinearGradient
}

// Combine is how the source and mask values are combined.
type Combine uint8

// Combine modes.
const (
	// CombineNormal multiplies the source by the mask alpha.
	CombineNormal Combine = iota
	// CombineComponentAlpha multiplies the source by the mask per channel.
	CombineComponentAlpha
	// CombineComponentAlphaSource outputs the source alpha multiplied by the
	// mask per channel. It is the first pass of a two-pass component-alpha
	// composite, which scales the destination before the source is added.
	CombineComponentAlphaSource
)

// String returns the combine mode name.
func (c Combine) String() string {
	switch c {
	case CombineNormal:
		return "normal"
	case CombineComponentAlpha:
		return "ca"
	case CombineComponentAlphaSource:
		return "ca_source_alpha"
	default:
		return fmt.Sprintf("Combine(%d)", c)
	}
}

// Signature is the composition signature of a draw and the key of the
// program cache. Signatures are plain values: two signatures are equal
// exactly when all fields are equal.
type Signature struct {
	Source  OperandKind
	Mask    OperandKind
	Combine Combine

	SourceBorderFade bool
	MaskBorderFade   bool

	SourceFilter driver.Filter
	MaskFilter   driver.Filter
}

// Hash implements the cache key contract.
func (s Signature) Hash() uint64 {
	h := cache.NewHasher()
	h.Uint32(uint32(s.Source))
	h.Uint32(uint32(s.Mask))
	h.Uint32(uint32(s.Combine))
	h.Bool(s.SourceBorderFade)
	h.Bool(s.MaskBorderFade)
	h.Uint32(uint32(s.SourceFilter))
	h.Uint32(uint32(s.MaskFilter))
	return h.Sum()
}

// Equal implements the cache key contract.
func (s Signature) Equal(other Signature) bool {
	return s == other
}

// String returns a compact form for logs.
func (s Signature) String() string {
	return fmt.Sprintf("src=%s(fade=%t,filter=%d) mask=%s(fade=%t,filter=%d) combine=%s",
		s.Source, s.SourceBorderFade, s.SourceFilter,
		s.Mask, s.MaskBorderFade, s.MaskFilter,
		s.Combine)
}
