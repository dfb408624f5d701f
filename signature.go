package compositor

import "github.com/gogpu/compositor/internal/shader"

// ShaderSource generates the vertex and fragment sources for a composition
// signature. The device treats the sources as opaque compiler input.
type ShaderSource = shader.Generator

// ShaderSourceFunc adapts a function to ShaderSource.
type ShaderSourceFunc = shader.GeneratorFunc

// Signature is the composition signature resolved for a draw: operand
// kinds, combine mode, border fades and filters. It keys the program cache.
type Signature = shader.Signature

// OperandKind is the kind of a source or mask operand.
type OperandKind = shader.OperandKind

// Operand kinds.
const (
	OperandNone               = shader.OperandNone
	OperandConstant           = shader.OperandConstant
	OperandTexture            = shader.OperandTexture
	OperandAtlas              = shader.OperandAtlas
	OperandAlphaAtlas         = shader.OperandAlphaAtlas
	OperandLinearGradient     = shader.OperandLinearGradient
	OperandRadialGradientA0   = shader.OperandRadialGradientA0
	OperandRadialGradientNone = shader.OperandRadialGradientNone
	OperandRadialGradientExt  = shader.OperandRadialGradientExt
)

// Combine is how source and mask values are combined.
type Combine = shader.Combine

// Combine modes.
const (
	CombineNormal               = shader.CombineNormal
	CombineComponentAlpha       = shader.CombineComponentAlpha
	CombineComponentAlphaSource = shader.CombineComponentAlphaSource
)
