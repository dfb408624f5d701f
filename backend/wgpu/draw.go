//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// submitTimeout bounds the completion wait of one pass.
const submitTimeout = 5 * time.Second

// renderTarget is the attachment a pass draws into.
type renderTarget struct {
	view          hal.TextureView
	format        gputypes.TextureFormat
	width, height int
	offscreen     bool
}

// target resolves the bound framebuffer.
func (d *Driver) target() (renderTarget, error) {
	if d.st.fb == driver.DefaultFramebuffer {
		if d.surface == nil {
			return renderTarget{}, ErrNoSurface
		}
		format := d.surface.Format
		if format == gputypes.TextureFormatUndefined {
			format = d.format
		}
		return renderTarget{
			view:   d.surface.View,
			format: format,
			width:  d.surface.Width,
			height: d.surface.Height,
		}, nil
	}
	t, ok := d.textures[d.framebuffers[d.st.fb]]
	if !ok {
		return renderTarget{}, fmt.Errorf("wgpu: framebuffer %d has no texture", d.st.fb)
	}
	return renderTarget{
		view:      t.view,
		format:    t.desc.Format,
		width:     t.desc.Width,
		height:    t.desc.Height,
		offscreen: true,
	}, nil
}

// rect converts a framebuffer rectangle to render pass coordinates.
func (rt renderTarget) rect(r driver.Rect) driver.Rect {
	if rt.offscreen {
		return clampRect(r, rt.width, rt.height)
	}
	return topLeft(r, rt.width, rt.height)
}

// Clear implements driver.Driver. A scissored clear must cover the whole
// target; partial clears are drawn by the compositor as geometry.
func (d *Driver) Clear() {
	rt, err := d.target()
	if err != nil {
		d.latch(err)
		return
	}
	if d.st.scissorOn {
		full := driver.Rect{Width: rt.width, Height: rt.height}
		if !rt.rect(d.st.scissor).Contains(full) {
			d.latch(fmt.Errorf("%w: wgpu: scissored clear", driver.ErrUnsupported))
			return
		}
	}
	d.submit("compositor_clear", rt, gputypes.LoadOpClear, nil)
}

// DrawIndexed implements driver.Driver. Each call records one render pass
// and waits for it to complete.
func (d *Driver) DrawIndexed(call *driver.DrawCall) {
	if call == nil || len(call.Indices) == 0 {
		return
	}
	p, ok := d.programs[d.st.program]
	if !ok {
		d.latch(errors.New("wgpu: draw without a current program"))
		return
	}
	rt, err := d.target()
	if err != nil {
		d.latch(err)
		return
	}
	viewport := driver.Rect{Width: rt.width, Height: rt.height}
	if !d.st.viewport.Empty() {
		viewport = rt.rect(d.st.viewport)
	}
	scissor := viewport
	if d.st.scissorOn {
		scissor = rt.rect(d.st.scissor)
	}
	if viewport.Empty() || scissor.Empty() {
		return
	}

	pl, err := d.pipeline(p, rt.format)
	if err != nil {
		d.latch(err)
		return
	}
	uniforms := p.uniforms
	if rt.offscreen {
		uniforms.flipViewport()
	}

	var res drawResources
	defer res.destroy(d.device)
	if err := d.upload(&res, p, call, uniforms[:]); err != nil {
		d.latch(err)
		return
	}

	d.submit("compositor_draw", rt, gputypes.LoadOpLoad, func(rp hal.RenderPassEncoder) {
		//nolint:gosec // rectangles are clamped to the target
		rp.SetViewport(float32(viewport.X), float32(viewport.Y), float32(viewport.Width), float32(viewport.Height), 0, 1)
		//nolint:gosec // rectangles are clamped to the target
		rp.SetScissorRect(uint32(scissor.X), uint32(scissor.Y), uint32(scissor.Width), uint32(scissor.Height))
		rp.SetPipeline(pl)
		rp.SetBindGroup(0, res.bindGroup, nil)
		rp.SetVertexBuffer(0, res.vertices, 0)
		rp.SetIndexBuffer(res.indices, gputypes.IndexFormatUint16, 0)
		rp.DrawIndexed(uint32(len(call.Indices)), 1, 0, 0, 0) //nolint:gosec // bounded by uint16 indices
	})
}

// drawResources are the per-draw buffers and bind group.
type drawResources struct {
	vertices, indices, uniforms hal.Buffer
	bindGroup                   hal.BindGroup
}

func (r *drawResources) destroy(device hal.Device) {
	if r.bindGroup != nil {
		device.DestroyBindGroup(r.bindGroup)
	}
	for _, b := range []hal.Buffer{r.vertices, r.indices, r.uniforms} {
		if b != nil {
			device.DestroyBuffer(b)
		}
	}
}

func (d *Driver) upload(res *drawResources, p *program, call *driver.DrawCall, uniforms []byte) error {
	var err error
	if res.vertices, err = d.buffer("compositor_vertices", pad4(call.Vertices), gputypes.BufferUsageVertex); err != nil {
		return err
	}
	if res.indices, err = d.buffer("compositor_indices", indexBytes(call.Indices), gputypes.BufferUsageIndex); err != nil {
		return err
	}
	if res.uniforms, err = d.buffer("compositor_uniforms", uniforms, gputypes.BufferUsageUniform); err != nil {
		return err
	}

	entries := []gputypes.BindGroupEntry{{
		Binding:  bindingUniforms,
		Resource: gputypes.BufferBinding{Buffer: res.uniforms.NativeHandle(), Offset: 0, Size: uint64(len(uniforms))},
	}}
	for i, binding := range [textureUnits][2]uint32{
		{bindingSourceTexture, bindingSourceSampler},
		{bindingMaskTexture, bindingMaskSampler},
	} {
		t, ok := d.textures[d.st.bound[p.units[i]]]
		if !ok {
			t = d.blank
		}
		smp, err := d.sampler(t.sampler)
		if err != nil {
			return err
		}
		entries = append(entries,
			gputypes.BindGroupEntry{
				Binding:  binding[0],
				Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
			},
			gputypes.BindGroupEntry{
				Binding:  binding[1],
				Resource: gputypes.SamplerBinding{Sampler: smp.NativeHandle()},
			},
		)
	}
	res.bindGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "compositor_bind_group",
		Layout:  d.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group: %w", err)
	}
	return nil
}

// buffer creates a buffer holding data.
func (d *Driver) buffer(label string, data []byte, use gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: use | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: wgpu: create %s: %w", driver.ErrOutOfMemory, label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		d.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("wgpu: write %s: %w", label, err)
	}
	return buf, nil
}

// submit records one render pass on rt, submits it and waits for the GPU.
func (d *Driver) submit(label string, rt renderTarget, load gputypes.LoadOp, record func(hal.RenderPassEncoder)) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		d.latch(fmt.Errorf("wgpu: create command encoder: %w", err))
		return
	}
	if err := encoder.BeginEncoding(label); err != nil {
		d.latch(fmt.Errorf("wgpu: begin encoding: %w", err))
		return
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       rt.view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: d.st.clear,
		}},
	})
	if record != nil {
		record(rp)
	}
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.latch(fmt.Errorf("wgpu: end encoding: %w", err))
		return
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	idx, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		d.latch(fmt.Errorf("wgpu: submit: %w", err))
		return
	}
	if err := waitSubmission(d.queue, idx, submitTimeout); err != nil {
		d.latch(err)
	}
}
