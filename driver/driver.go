// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "github.com/gogpu/gputypes"

// Driver is the imperative graphics device the compositor drives.
//
// A Driver is not safe for concurrent use. The compositor only calls it while
// the owning device context is acquired.
type Driver interface {
	// Capabilities returns the device limits.
	Capabilities() DeviceCaps

	// MakeCurrent binds the native context of t to the calling thread.
	MakeCurrent(t Target) error

	// GetError returns the first error latched since the previous call and
	// clears it. It returns nil when no error occurred.
	GetError() error

	// === Fixed-function state ===

	// Enable turns on a fixed-function capability.
	Enable(c Capability)

	// Disable turns off a fixed-function capability.
	Disable(c Capability)

	// Scissor sets the scissor rectangle in framebuffer pixels.
	Scissor(r Rect)

	// Viewport sets the viewport rectangle in framebuffer pixels.
	Viewport(r Rect)

	// BlendState sets the blend equation used while CapBlend is enabled.
	BlendState(b gputypes.BlendState)

	// ClearColor sets the color used by Clear.
	ClearColor(c gputypes.Color)

	// Clear fills the bound framebuffer (inside the scissor, if enabled)
	// with the clear color.
	Clear()

	// BindFramebuffer makes fb the render target.
	BindFramebuffer(fb FramebufferID)

	// ActiveTexture selects the texture unit BindTexture affects.
	ActiveTexture(unit int)

	// BindTexture binds tex to the active texture unit.
	BindTexture(tex TextureID)

	// === Programs ===

	// CompileShader compiles one stage from source.
	CompileShader(stage ShaderStage, source string) (ShaderID, error)

	// DeleteShader releases a compiled stage.
	DeleteShader(id ShaderID)

	// LinkProgram links a vertex and a fragment stage.
	LinkProgram(vertex, fragment ShaderID) (ProgramID, error)

	// DeleteProgram releases a linked program.
	DeleteProgram(id ProgramID)

	// UseProgram makes p the current program. InvalidID unbinds.
	UseProgram(p ProgramID)

	// UniformLocation looks up a uniform of p. Unused or unknown names
	// report NoUniform.
	UniformLocation(p ProgramID, name string) UniformLocation

	// Uniform1i sets an integer (or sampler unit) uniform of the current
	// program.
	Uniform1i(loc UniformLocation, v int32)

	// Uniform1f sets a float uniform of the current program.
	Uniform1f(loc UniformLocation, v float32)

	// Uniform2f sets a vec2 uniform of the current program.
	Uniform2f(loc UniformLocation, x, y float32)

	// Uniform4f sets a vec4 uniform of the current program.
	Uniform4f(loc UniformLocation, x, y, z, w float32)

	// UniformMatrix3 sets a column-major mat3 uniform of the current program.
	UniformMatrix3(loc UniformLocation, m [9]float32)

	// === Textures ===

	// CreateTexture allocates a texture with undefined contents.
	CreateTexture(desc TextureDesc) (TextureID, error)

	// WriteTexture uploads a sub-rectangle. stride is the byte length of one
	// row of data.
	WriteTexture(tex TextureID, r Rect, data []byte, stride int)

	// SetSampler configures filtering and wrapping of tex.
	SetSampler(tex TextureID, s SamplerState)

	// DeleteTexture releases a texture.
	DeleteTexture(tex TextureID)

	// CreateFramebuffer creates a render target drawing into tex.
	CreateFramebuffer(tex TextureID) (FramebufferID, error)

	// DeleteFramebuffer releases a render target.
	DeleteFramebuffer(fb FramebufferID)

	// === Drawing ===

	// DrawIndexed uploads the call's vertices and indices and draws them as
	// a triangle list with the current program and state.
	DrawIndexed(call *DrawCall)
}
