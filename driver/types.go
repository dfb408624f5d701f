// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// TextureID is an opaque handle to a device texture.
type TextureID uint64

// FramebufferID is an opaque handle to a render target.
type FramebufferID uint64

// ShaderID is an opaque handle to a compiled shader stage.
type ShaderID uint64

// ProgramID is an opaque handle to a linked program.
type ProgramID uint64

// UniformLocation identifies a uniform inside a linked program.
type UniformLocation int32

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// DefaultFramebuffer names the framebuffer of the current window-system
// drawable.
const DefaultFramebuffer FramebufferID = 0

// NoUniform is returned for names the program does not use.
const NoUniform UniformLocation = -1

// Target is the key of a make-current binding: display connection, drawable
// and native context. Fields are compared with ==, so they must hold
// comparable values (handles, pointers, integers).
type Target struct {
	Display  any
	Drawable any
	Context  any
}

// IsZero reports whether the target names nothing.
func (t Target) IsZero() bool {
	return t.Display == nil && t.Drawable == nil && t.Context == nil
}

// Capability is a fixed-function toggle.
type Capability uint8

// Capabilities toggled through Enable and Disable.
const (
	CapScissor Capability = iota + 1
	CapStencil
	CapBlend
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapScissor:
		return "scissor"
	case CapStencil:
		return "stencil"
	case CapBlend:
		return "blend"
	default:
		return fmt.Sprintf("Capability(%d)", c)
	}
}

// ShaderStage selects the pipeline stage a shader compiles for.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota + 1
	StageFragment
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", s)
	}
}

// GPUStage returns the gputypes stage flag for s.
func (s ShaderStage) GPUStage() gputypes.ShaderStage {
	if s == StageVertex {
		return gputypes.ShaderStageVertex
	}
	return gputypes.ShaderStageFragment
}

// Rect is an integer rectangle in device pixels.
type Rect struct {
	X, Y, Width, Height int
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y &&
		o.X+o.Width <= r.X+r.Width && o.Y+o.Height <= r.Y+r.Height
}

// String returns a string representation of the rectangle.
func (r Rect) String() string {
	return fmt.Sprintf("Rect(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// TextureDesc describes a texture to create.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture size in texels.
	Width  int
	Height int

	// Format is the texel format. R8Unorm for alpha-only content,
	// RGBA8Unorm for color content.
	Format gputypes.TextureFormat

	// RenderTarget requests that the texture can back a framebuffer.
	RenderTarget bool
}

// BytesPerTexel returns the storage size of one texel of format f.
// Unknown formats report 4.
func BytesPerTexel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

// Filter selects texture sampling.
type Filter uint8

// Sampling filters.
const (
	FilterNearest Filter = iota
	FilterLinear
)

// Extend selects how texture coordinates outside [0,1] are resolved.
type Extend uint8

// Extend modes.
const (
	ExtendNone Extend = iota
	ExtendPad
	ExtendRepeat
	ExtendReflect
)

// SamplerState is the sampling configuration of a texture.
type SamplerState struct {
	Filter Filter
	Extend Extend
}

// FilterMode returns the gputypes filter mode for the sampler.
func (s SamplerState) FilterMode() gputypes.FilterMode {
	if s.Filter == FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

// AddressMode returns the gputypes address mode for the sampler.
func (s SamplerState) AddressMode() gputypes.AddressMode {
	switch s.Extend {
	case ExtendRepeat:
		return gputypes.AddressModeRepeat
	case ExtendReflect:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeClampToEdge
	}
}

// VertexStride is the byte size of one packed vertex in a draw.
const VertexStride = 20

// VertexLayout describes the packed vertex format produced by the batch
// accumulator: position, texture coordinate and premultiplied color.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: VertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},  // position
			{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},  // texcoord
			{Format: gputypes.VertexFormatUnorm8x4, Offset: 16, ShaderLocation: 2}, // color
		},
	}
}

// DrawCall is one indexed triangle-list draw.
type DrawCall struct {
	// Vertices holds VertexStride-sized packed vertices.
	Vertices []byte

	// Indices reference Vertices. Every three indices form a triangle.
	Indices []uint16
}

// VertexCount returns the number of vertices in the call.
func (c *DrawCall) VertexCount() int {
	return len(c.Vertices) / VertexStride
}

// DeviceCaps reports device limits the compositor adapts to.
type DeviceCaps struct {
	// MaxTextureSize is the largest texture dimension supported.
	MaxTextureSize int

	// MaxTextureUnits is the number of sampler units.
	MaxTextureUnits int

	// ComponentAlpha reports dual-source blending support.
	ComponentAlpha bool
}
