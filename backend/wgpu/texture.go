//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// texture is a device texture with its default view and sampling state.
type texture struct {
	desc    driver.TextureDesc
	tex     hal.Texture
	view    hal.TextureView
	sampler driver.SamplerState
}

// CreateTexture implements driver.Driver.
func (d *Driver) CreateTexture(desc driver.TextureDesc) (driver.TextureID, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Width > maxTextureSize || desc.Height > maxTextureSize {
		return driver.InvalidID, fmt.Errorf("%w: wgpu: texture size %dx%d", driver.ErrUnsupported, desc.Width, desc.Height)
	}
	t, err := d.newTexture(desc)
	if err != nil {
		return driver.InvalidID, err
	}
	id := driver.TextureID(d.id())
	d.textures[id] = t
	slogger().Debug("wgpu: texture created", "id", id, "label", desc.Label, "width", desc.Width, "height", desc.Height)
	return id, nil
}

func (d *Driver) newTexture(desc driver.TextureDesc) (*texture, error) {
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),  //nolint:gosec // bounded by maxTextureSize
			Height:             uint32(desc.Height), //nolint:gosec // bounded by maxTextureSize
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         usage(desc),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: wgpu: create texture %q: %w", driver.ErrOutOfMemory, desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("wgpu: create texture view %q: %w", desc.Label, err)
	}
	return &texture{desc: desc, tex: tex, view: view}, nil
}

func (d *Driver) destroyTexture(t *texture) {
	d.device.DestroyTextureView(t.view)
	d.device.DestroyTexture(t.tex)
}

// WriteTexture implements driver.Driver.
func (d *Driver) WriteTexture(id driver.TextureID, r driver.Rect, data []byte, stride int) {
	t, ok := d.textures[id]
	if !ok {
		d.latch(fmt.Errorf("wgpu: write to unknown texture %d", id))
		return
	}
	bounds := driver.Rect{Width: t.desc.Width, Height: t.desc.Height}
	if r.Empty() || !bounds.Contains(r) {
		d.latch(fmt.Errorf("wgpu: write %v outside texture %d", r, id))
		return
	}
	d.writeTexture(t, r, data, stride)
}

func (d *Driver) writeTexture(t *texture, r driver.Rect, data []byte, stride int) {
	n := uploadSize(r.Width, r.Height, driver.BytesPerTexel(t.desc.Format), stride)
	if n < 0 || len(data) < n {
		d.latch(fmt.Errorf("wgpu: %d bytes for %v with stride %d", len(data), r, stride))
		return
	}
	//nolint:gosec // rectangles are validated against the texture bounds
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture: t.tex,
			Origin:  hal.Origin3D{X: uint32(r.X), Y: uint32(r.Y)},
			Aspect:  gputypes.TextureAspectAll,
		},
		data[:n],
		&hal.ImageDataLayout{
			BytesPerRow:  uint32(stride),
			RowsPerImage: uint32(r.Height),
		},
		&hal.Extent3D{Width: uint32(r.Width), Height: uint32(r.Height), DepthOrArrayLayers: 1},
	)
	if err != nil {
		d.latch(fmt.Errorf("wgpu: write texture %q: %w", t.desc.Label, err))
	}
}

// SetSampler implements driver.Driver. Samplers are shared between textures
// with the same state.
func (d *Driver) SetSampler(id driver.TextureID, s driver.SamplerState) {
	t, ok := d.textures[id]
	if !ok {
		d.latch(fmt.Errorf("wgpu: sampler on unknown texture %d", id))
		return
	}
	t.sampler = s
}

// sampler returns the cached sampler object of s.
func (d *Driver) sampler(s driver.SamplerState) (hal.Sampler, error) {
	if smp, ok := d.samplers[s]; ok {
		return smp, nil
	}
	mode := s.AddressMode()
	filter := s.FilterMode()
	smp, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "compositor_sampler",
		AddressModeU: mode,
		AddressModeV: mode,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create sampler: %w", err)
	}
	d.samplers[s] = smp
	return smp, nil
}

// DeleteTexture implements driver.Driver. Framebuffers on the texture are
// deleted with it.
func (d *Driver) DeleteTexture(id driver.TextureID) {
	t, ok := d.textures[id]
	if !ok {
		return
	}
	for fb, tex := range d.framebuffers {
		if tex == id {
			d.DeleteFramebuffer(fb)
		}
	}
	for i, bound := range d.st.bound {
		if bound == id {
			d.st.bound[i] = driver.InvalidID
		}
	}
	d.destroyTexture(t)
	delete(d.textures, id)
}
