//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Sampler binding slots of the shared bind group layout. Binding 0 is the
// uniform block.
const (
	bindingUniforms      = 0
	bindingSourceTexture = 1
	bindingSourceSampler = 2
	bindingMaskTexture   = 3
	bindingMaskSampler   = 4
)

// textureUnits is the number of texture units generated programs sample.
const textureUnits = 2

// maxTextureSize is the WebGPU default maxTextureDimension2D limit.
const maxTextureSize = 8192

var (
	// ErrNoHAL is returned by New for providers without HAL accessors.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")

	// ErrNoSurface is latched when drawing to the default framebuffer
	// without a current surface.
	ErrNoSurface = errors.New("wgpu: no current surface")
)

// Surface is a window-system render target. Pass a *Surface as the
// Drawable of a driver.Target to draw into it after MakeCurrent.
type Surface struct {
	View   hal.TextureView
	Width  int
	Height int
	Format gputypes.TextureFormat
}

// Driver implements driver.Driver over a wgpu HAL device.
//
// GL-style state calls only update a pending state block. DrawIndexed and
// Clear record and submit one render pass each with that state applied.
// Driver is not safe for concurrent use.
type Driver struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat

	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	blank      *texture

	surface *Surface

	nextID       uint64
	shaders      map[driver.ShaderID]*shaderModule
	programs     map[driver.ProgramID]*program
	textures     map[driver.TextureID]*texture
	framebuffers map[driver.FramebufferID]driver.TextureID
	samplers     map[driver.SamplerState]hal.Sampler

	st  state
	err error
}

// state is the pending fixed-function state applied at the next pass.
type state struct {
	scissorOn bool
	blendOn   bool
	scissor   driver.Rect
	viewport  driver.Rect
	blend     gputypes.BlendState
	clear     gputypes.Color
	fb        driver.FramebufferID
	unit      int
	bound     [textureUnits]driver.TextureID
	program   driver.ProgramID
}

// New creates a driver on the device shared by provider. The provider must
// expose HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue, as gogpu device providers do.
func New(provider gpucontext.DeviceProvider) (*Driver, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return NewWithDevice(device, queue, provider.SurfaceFormat())
}

// NewWithDevice creates a driver on device and queue. format is the
// surface format of window targets.
func NewWithDevice(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*Driver, error) {
	d := &Driver{
		device:       device,
		queue:        queue,
		format:       format,
		shaders:      make(map[driver.ShaderID]*shaderModule),
		programs:     make(map[driver.ProgramID]*program),
		textures:     make(map[driver.TextureID]*texture),
		framebuffers: make(map[driver.FramebufferID]driver.TextureID),
		samplers:     make(map[driver.SamplerState]hal.Sampler),
	}
	if err := d.createLayouts(); err != nil {
		d.Destroy()
		return nil, err
	}
	blank, err := d.newTexture(driver.TextureDesc{
		Label:  "wgpu-blank",
		Width:  1,
		Height: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.blank = blank
	d.writeTexture(blank, driver.Rect{Width: 1, Height: 1}, []byte{0, 0, 0, 0}, 4)

	slogger().Info("wgpu: driver created", "format", format)
	return d, nil
}

func (d *Driver) createLayouts() error {
	fragment := gputypes.ShaderStageFragment
	texture := &gputypes.TextureBindingLayout{
		SampleType:    gputypes.TextureSampleTypeFloat,
		ViewDimension: gputypes.TextureViewDimension2D,
	}
	sampler := &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}

	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "compositor_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    bindingUniforms,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{Binding: bindingSourceTexture, Visibility: fragment, Texture: texture},
			{Binding: bindingSourceSampler, Visibility: fragment, Sampler: sampler},
			{Binding: bindingMaskTexture, Visibility: fragment, Texture: texture},
			{Binding: bindingMaskSampler, Visibility: fragment, Sampler: sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout: %w", err)
	}
	d.bindLayout = layout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "compositor_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout
	return nil
}

// Destroy releases every object created through the driver.
func (d *Driver) Destroy() {
	if d.device == nil {
		return
	}
	for id := range d.programs {
		d.DeleteProgram(id)
	}
	for id, s := range d.shaders {
		d.device.DestroyShaderModule(s.module)
		delete(d.shaders, id)
	}
	for id := range d.textures {
		d.DeleteTexture(id)
	}
	if d.blank != nil {
		d.destroyTexture(d.blank)
		d.blank = nil
	}
	for key, s := range d.samplers {
		d.device.DestroySampler(s)
		delete(d.samplers, key)
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.bindLayout != nil {
		d.device.DestroyBindGroupLayout(d.bindLayout)
		d.bindLayout = nil
	}
	clear(d.framebuffers)
	d.device = nil
	slogger().Info("wgpu: driver destroyed")
}

func (d *Driver) id() uint64 {
	d.nextID++
	return d.nextID
}

// latch records the first error until GetError.
func (d *Driver) latch(err error) {
	slogger().Warn("wgpu: error", "err", err)
	if d.err == nil {
		d.err = err
	}
}

// Capabilities implements driver.Driver.
func (d *Driver) Capabilities() driver.DeviceCaps {
	return driver.DeviceCaps{
		MaxTextureSize:  maxTextureSize,
		MaxTextureUnits: textureUnits,
		// Component alpha is drawn in two passes with standard blend
		// factors, so every device supports it.
		ComponentAlpha: true,
	}
}

// MakeCurrent implements driver.Driver. The drawable of t must be a
// *Surface; it becomes the default framebuffer.
func (d *Driver) MakeCurrent(t driver.Target) error {
	s, ok := t.Drawable.(*Surface)
	if !ok || s == nil || s.View == nil {
		return fmt.Errorf("wgpu: target drawable %T is not a *wgpu.Surface", t.Drawable)
	}
	d.surface = s
	return nil
}

// GetError implements driver.Driver.
func (d *Driver) GetError() error {
	err := d.err
	d.err = nil
	return err
}

// Enable implements driver.Driver.
func (d *Driver) Enable(c driver.Capability) { d.toggle(c, true) }

// Disable implements driver.Driver.
func (d *Driver) Disable(c driver.Capability) { d.toggle(c, false) }

func (d *Driver) toggle(c driver.Capability, on bool) {
	switch c {
	case driver.CapScissor:
		d.st.scissorOn = on
	case driver.CapBlend:
		d.st.blendOn = on
	case driver.CapStencil:
		// No stencil attachment is ever bound.
	}
}

// Scissor implements driver.Driver.
func (d *Driver) Scissor(r driver.Rect) { d.st.scissor = r }

// Viewport implements driver.Driver.
func (d *Driver) Viewport(r driver.Rect) { d.st.viewport = r }

// BlendState implements driver.Driver.
func (d *Driver) BlendState(b gputypes.BlendState) { d.st.blend = b }

// ClearColor implements driver.Driver.
func (d *Driver) ClearColor(c gputypes.Color) { d.st.clear = c }

// BindFramebuffer implements driver.Driver.
func (d *Driver) BindFramebuffer(fb driver.FramebufferID) {
	if fb != driver.DefaultFramebuffer {
		if _, ok := d.framebuffers[fb]; !ok {
			d.latch(fmt.Errorf("wgpu: bind unknown framebuffer %d", fb))
			return
		}
	}
	d.st.fb = fb
}

// ActiveTexture implements driver.Driver.
func (d *Driver) ActiveTexture(unit int) {
	if unit < 0 || unit >= textureUnits {
		d.latch(fmt.Errorf("wgpu: texture unit %d out of range", unit))
		return
	}
	d.st.unit = unit
}

// BindTexture implements driver.Driver.
func (d *Driver) BindTexture(tex driver.TextureID) { d.st.bound[d.st.unit] = tex }

// CreateFramebuffer implements driver.Driver.
func (d *Driver) CreateFramebuffer(tex driver.TextureID) (driver.FramebufferID, error) {
	t, ok := d.textures[tex]
	if !ok {
		return driver.InvalidID, fmt.Errorf("wgpu: framebuffer on unknown texture %d", tex)
	}
	if !t.desc.RenderTarget {
		return driver.InvalidID, fmt.Errorf("wgpu: texture %d is not a render target", tex)
	}
	fb := driver.FramebufferID(d.id())
	d.framebuffers[fb] = tex
	return fb, nil
}

// DeleteFramebuffer implements driver.Driver.
func (d *Driver) DeleteFramebuffer(fb driver.FramebufferID) {
	delete(d.framebuffers, fb)
	if d.st.fb == fb {
		d.st.fb = driver.DefaultFramebuffer
	}
}
