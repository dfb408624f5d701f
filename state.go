package compositor

import (
	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
)

// cached is one last-applied driver value.
type cached[T comparable] struct {
	val   T
	valid bool
}

// set records v and reports whether the driver must be told.
func (c *cached[T]) set(v T) bool {
	if c.valid && c.val == v {
		return false
	}
	c.val, c.valid = v, true
	return true
}

// trackedUnits is the number of texture units whose bindings are cached.
const trackedUnits = 2

// deviceState mirrors the driver state last applied through the device.
// The zero value knows nothing, so every setter reaches the driver once.
type deviceState struct {
	scissorOn cached[bool]
	stencilOn cached[bool]
	blendOn   cached[bool]

	scissor     cached[driver.Rect]
	viewport    cached[driver.Rect]
	blend       cached[gputypes.BlendState]
	clearColor  cached[gputypes.Color]
	framebuffer cached[driver.FramebufferID]
	unit        cached[int]
	textures    [trackedUnits]cached[driver.TextureID]
	program     cached[driver.ProgramID]

	samplers map[driver.TextureID]driver.SamplerState
}

func (s *deviceState) invalidate() {
	*s = deviceState{samplers: make(map[driver.TextureID]driver.SamplerState)}
}

// forgetTexture drops cached state naming a deleted texture.
func (s *deviceState) forgetTexture(tex driver.TextureID) {
	for i := range s.textures {
		if s.textures[i].val == tex {
			s.textures[i].valid = false
		}
	}
	delete(s.samplers, tex)
}

// tracked forwards to the driver and keeps the state cache free of deleted
// objects, whose handles the driver may hand out again.
type tracked struct {
	driver.Driver
	st *deviceState
}

func (t tracked) DeleteTexture(tex driver.TextureID) {
	t.st.forgetTexture(tex)
	t.Driver.DeleteTexture(tex)
}

func (t tracked) DeleteProgram(p driver.ProgramID) {
	if t.st.program.val == p {
		t.st.program.valid = false
	}
	t.Driver.DeleteProgram(p)
}

func (t tracked) DeleteFramebuffer(fb driver.FramebufferID) {
	if t.st.framebuffer.val == fb {
		t.st.framebuffer.valid = false
	}
	t.Driver.DeleteFramebuffer(fb)
}

// applied counts a setter outcome.
func (d *Device) applied(changed bool) bool {
	if changed {
		d.counters.stateCalls++
	} else {
		d.counters.stateSkipped++
	}
	return changed
}

// The setters below skip the driver call when the requested value equals
// the last applied one. They are meant for use while the device is held;
// call Reset after anything else touched the native context.

// EnableScissor turns scissor testing on.
func (d *Device) EnableScissor() {
	if d.applied(d.state.scissorOn.set(true)) {
		d.drv.Enable(driver.CapScissor)
	}
}

// DisableScissor turns scissor testing off.
func (d *Device) DisableScissor() {
	if d.applied(d.state.scissorOn.set(false)) {
		d.drv.Disable(driver.CapScissor)
	}
}

// SetScissor sets the scissor rectangle in framebuffer pixels.
func (d *Device) SetScissor(r driver.Rect) {
	if d.applied(d.state.scissor.set(r)) {
		d.drv.Scissor(r)
	}
}

// EnableStencil turns stencil testing on.
func (d *Device) EnableStencil() {
	if d.applied(d.state.stencilOn.set(true)) {
		d.drv.Enable(driver.CapStencil)
	}
}

// DisableStencil turns stencil testing off.
func (d *Device) DisableStencil() {
	if d.applied(d.state.stencilOn.set(false)) {
		d.drv.Disable(driver.CapStencil)
	}
}

// SetBlend enables blending with b.
func (d *Device) SetBlend(b gputypes.BlendState) {
	if d.applied(d.state.blend.set(b)) {
		d.drv.BlendState(b)
	}
	if d.applied(d.state.blendOn.set(true)) {
		d.drv.Enable(driver.CapBlend)
	}
}

// DisableBlend turns blending off.
func (d *Device) DisableBlend() {
	if d.applied(d.state.blendOn.set(false)) {
		d.drv.Disable(driver.CapBlend)
	}
}

// BindFramebuffer makes fb the render target.
func (d *Device) BindFramebuffer(fb driver.FramebufferID) {
	if d.applied(d.state.framebuffer.set(fb)) {
		d.drv.BindFramebuffer(fb)
	}
}

// SetViewport sets the viewport rectangle.
func (d *Device) SetViewport(r driver.Rect) {
	if d.applied(d.state.viewport.set(r)) {
		d.drv.Viewport(r)
	}
}

// ActiveTexture selects the texture unit texture bindings affect.
func (d *Device) ActiveTexture(unit int) {
	if d.applied(d.state.unit.set(unit)) {
		d.drv.ActiveTexture(unit)
	}
}

// BindTexture binds tex to unit.
func (d *Device) BindTexture(unit int, tex driver.TextureID) {
	if unit < 0 || unit >= trackedUnits {
		d.ActiveTexture(unit)
		d.drv.BindTexture(tex)
		return
	}
	if !d.state.textures[unit].valid || d.state.textures[unit].val != tex {
		d.ActiveTexture(unit)
	}
	if d.applied(d.state.textures[unit].set(tex)) {
		d.drv.BindTexture(tex)
	}
}

// setSampler configures the sampling of tex.
func (d *Device) setSampler(tex driver.TextureID, s driver.SamplerState) {
	if cur, ok := d.state.samplers[tex]; ok && cur == s {
		d.counters.stateSkipped++
		return
	}
	d.state.samplers[tex] = s
	d.counters.stateCalls++
	d.drv.SetSampler(tex, s)
}

// ClearColor sets the color Clear fills with.
func (d *Device) ClearColor(c gputypes.Color) {
	if d.applied(d.state.clearColor.set(c)) {
		d.drv.ClearColor(c)
	}
}

// UseProgram makes p current. It is the binder of the program cache.
func (d *Device) UseProgram(p driver.ProgramID) {
	if d.applied(d.state.program.set(p)) {
		d.drv.UseProgram(p)
	}
}
