package compositor

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Operator is a Porter-Duff compositing operator (plus additive blending)
// applied between the masked source and the destination. Colors are
// premultiplied.
type Operator uint8

// Operators. The zero value is OpOver.
const (
	OpOver Operator = iota
	OpClear
	OpSource
	OpIn
	OpOut
	OpAtop
	OpDest
	OpDestOver
	OpDestIn
	OpDestOut
	OpDestAtop
	OpXor
	OpAdd

	// The operators below have no fixed-function blend mapping and make
	// SetOperator fail with ErrUnsupported.

	OpSaturate
	OpMultiply
	OpScreen
	OpDifference
)

var operatorNames = [...]string{
	OpOver:       "over",
	OpClear:      "clear",
	OpSource:     "source",
	OpIn:         "in",
	OpOut:        "out",
	OpAtop:       "atop",
	OpDest:       "dest",
	OpDestOver:   "dest-over",
	OpDestIn:     "dest-in",
	OpDestOut:    "dest-out",
	OpDestAtop:   "dest-atop",
	OpXor:        "xor",
	OpAdd:        "add",
	OpSaturate:   "saturate",
	OpMultiply:   "multiply",
	OpScreen:     "screen",
	OpDifference: "difference",
}

// String returns the operator name.
func (op Operator) String() string {
	if int(op) < len(operatorNames) {
		return operatorNames[op]
	}
	return fmt.Sprintf("Operator(%d)", op)
}

// factors holds the source and destination blend factors of an operator.
type factors struct {
	src, dst gputypes.BlendFactor
}

var blendFactors = map[Operator]factors{
	OpClear:    {gputypes.BlendFactorZero, gputypes.BlendFactorZero},
	OpSource:   {gputypes.BlendFactorOne, gputypes.BlendFactorZero},
	OpOver:     {gputypes.BlendFactorOne, gputypes.BlendFactorOneMinusSrcAlpha},
	OpIn:       {gputypes.BlendFactorDstAlpha, gputypes.BlendFactorZero},
	OpOut:      {gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorZero},
	OpAtop:     {gputypes.BlendFactorDstAlpha, gputypes.BlendFactorOneMinusSrcAlpha},
	OpDest:     {gputypes.BlendFactorZero, gputypes.BlendFactorOne},
	OpDestOver: {gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorOne},
	OpDestIn:   {gputypes.BlendFactorZero, gputypes.BlendFactorSrcAlpha},
	OpDestOut:  {gputypes.BlendFactorZero, gputypes.BlendFactorOneMinusSrcAlpha},
	OpDestAtop: {gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorSrcAlpha},
	OpXor:      {gputypes.BlendFactorOneMinusDstAlpha, gputypes.BlendFactorOneMinusSrcAlpha},
	OpAdd:      {gputypes.BlendFactorOne, gputypes.BlendFactorOne},
}

func blendOf(f factors) gputypes.BlendState {
	c := gputypes.BlendComponent{
		SrcFactor: f.src,
		DstFactor: f.dst,
		Operation: gputypes.BlendOperationAdd,
	}
	return gputypes.BlendState{Color: c, Alpha: c}
}

// Blend returns the blend state implementing op. Operators without a
// fixed-function mapping report ErrUnsupported.
func (op Operator) Blend() (gputypes.BlendState, error) {
	f, ok := blendFactors[op]
	if !ok {
		return gputypes.BlendState{}, fmt.Errorf("%w: compositor: operator %s has no blend mapping", ErrUnsupported, op)
	}
	return blendOf(f), nil
}

// pass is one draw of a flush: the fragment combine mode and the blend
// state to draw it with.
type pass struct {
	combine Combine
	blend   gputypes.BlendState
}

// passes returns the draws that composite with op through a mask that is
// component alpha or not. Component-alpha OVER scales the destination by
// the per-channel inverse coverage in a first pass and adds the masked
// source in a second.
func (op Operator) passes(componentAlpha bool) ([]pass, error) {
	if !componentAlpha {
		b, err := op.Blend()
		if err != nil {
			return nil, err
		}
		return []pass{{CombineNormal, b}}, nil
	}
	add := blendOf(blendFactors[OpAdd])
	switch op {
	case OpOver:
		return []pass{
			{CombineComponentAlphaSource, blendOf(factors{gputypes.BlendFactorZero, gputypes.BlendFactorOneMinusSrc})},
			{CombineComponentAlpha, add},
		}, nil
	case OpAdd:
		return []pass{{CombineComponentAlpha, add}}, nil
	default:
		return nil, fmt.Errorf("%w: compositor: operator %s with a component-alpha mask", ErrUnsupported, op)
	}
}
