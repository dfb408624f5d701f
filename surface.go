package compositor

import (
	"fmt"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
)

// Surface is a destination the device composites onto. The device depends
// only on this interface, never on the concrete kind.
type Surface interface {
	// Framebuffer returns the render target to bind.
	Framebuffer() driver.FramebufferID

	// Size returns the surface size in pixels.
	Size() (width, height int)

	// Target returns the native binding the surface needs current. The
	// zero Target means any context of the device will do.
	Target() driver.Target

	// Flipped reports whether row 0 is the bottom row, as with window
	// system framebuffers.
	Flipped() bool
}

// TextureSurface is an offscreen surface backed by a texture the device
// owns. Its texture can be used as a source operand once drawn.
type TextureSurface struct {
	dev    *Device
	tex    driver.TextureID
	fb     driver.FramebufferID
	width  int
	height int
	format gputypes.TextureFormat
}

// NewTextureSurface creates an offscreen surface. The device must be held.
func (d *Device) NewTextureSurface(width, height int, format gputypes.TextureFormat) (*TextureSurface, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("compositor: invalid surface size %dx%d", width, height)
	}
	if limit := d.caps.MaxTextureSize; limit > 0 && (width > limit || height > limit) {
		return nil, fmt.Errorf("%w: compositor: surface %dx%d exceeds device limit %d", ErrUnsupported, width, height, limit)
	}
	tex, err := d.drv.CreateTexture(driver.TextureDesc{
		Label:        "surface",
		Width:        width,
		Height:       height,
		Format:       format,
		RenderTarget: true,
	})
	if err != nil {
		return nil, fmt.Errorf("compositor: create surface texture: %w", err)
	}
	fb, err := d.drv.CreateFramebuffer(tex)
	if err != nil {
		d.drv.DeleteTexture(tex)
		return nil, fmt.Errorf("compositor: create surface framebuffer: %w", err)
	}
	s := &TextureSurface{dev: d, tex: tex, fb: fb, width: width, height: height, format: format}
	d.surfaces[s] = struct{}{}
	return s, nil
}

// Framebuffer implements Surface.
func (s *TextureSurface) Framebuffer() driver.FramebufferID { return s.fb }

// Size implements Surface.
func (s *TextureSurface) Size() (int, int) { return s.width, s.height }

// Target implements Surface.
func (s *TextureSurface) Target() driver.Target { return driver.Target{} }

// Flipped implements Surface.
func (s *TextureSurface) Flipped() bool { return false }

// Texture returns the backing texture.
func (s *TextureSurface) Texture() driver.TextureID { return s.tex }

// Format returns the texel format.
func (s *TextureSurface) Format() gputypes.TextureFormat { return s.format }

// Operand returns the surface contents as a texture operand drawn 1:1 at
// (x, y).
func (s *TextureSurface) Operand(x, y float64, sampler driver.SamplerState) Operand {
	return Texture(s.tex, s.width, s.height, sampler, TextureMatrix(x, y, s.width, s.height))
}

// Destroy releases the texture and framebuffer. Pending geometry is flushed
// first. The device must be held.
func (s *TextureSurface) Destroy() error {
	d := s.dev
	if err := d.ready(); err != nil {
		return err
	}
	if _, ok := d.surfaces[s]; !ok {
		return nil
	}
	err := d.acc.Flush()
	if d.comp.dst == Surface(s) {
		d.comp.dst = nil
		_ = d.begin()
	}
	s.release()
	return err
}

func (s *TextureSurface) release() {
	d := s.dev
	delete(d.surfaces, s)
	d.drv.DeleteFramebuffer(s.fb)
	d.drv.DeleteTexture(s.tex)
	s.fb, s.tex = driver.InvalidID, driver.InvalidID
}

// WindowSurface is the default framebuffer of a window-system drawable.
// The device only compares its target for make-current changes.
type WindowSurface struct {
	target        driver.Target
	width, height int
}

// NewWindowSurface returns a surface for the default framebuffer of t.
func NewWindowSurface(t driver.Target, width, height int) *WindowSurface {
	return &WindowSurface{target: t, width: width, height: height}
}

// Resize updates the drawable size after the window changed.
func (s *WindowSurface) Resize(width, height int) {
	s.width, s.height = width, height
}

// Framebuffer implements Surface.
func (s *WindowSurface) Framebuffer() driver.FramebufferID { return driver.DefaultFramebuffer }

// Size implements Surface.
func (s *WindowSurface) Size() (int, int) { return s.width, s.height }

// Target implements Surface.
func (s *WindowSurface) Target() driver.Target { return s.target }

// Flipped implements Surface.
func (s *WindowSurface) Flipped() bool { return true }
