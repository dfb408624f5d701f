// Package drivertest provides an in-memory recording implementation of
// driver.Driver for tests.
//
// The recording driver keeps every object it creates, counts every call, and
// snapshots the bound state of each draw so tests can assert on exactly what
// reached the device.
package drivertest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
)

// ErrInjected is the default error used by the failure hooks.
var ErrInjected = errors.New("drivertest: injected failure")

// Draw is a snapshot of one DrawIndexed call.
type Draw struct {
	Program     driver.ProgramID
	Framebuffer driver.FramebufferID
	Textures    map[int]driver.TextureID
	Blend       bool
	BlendState  gputypes.BlendState
	Scissor     bool
	ScissorRect driver.Rect
	Stencil     bool
	Viewport    driver.Rect
	Vertices    []byte
	Indices     []uint16
}

// VertexCount returns the number of packed vertices in the draw.
func (d *Draw) VertexCount() int { return len(d.Vertices) / driver.VertexStride }

// Texture is a texture created through the driver.
type Texture struct {
	Desc    driver.TextureDesc
	Data    []byte
	Sampler driver.SamplerState
	Writes  int
}

type shader struct {
	stage  driver.ShaderStage
	source string
}

// Program is a linked program.
type Program struct {
	Vertex   string
	Fragment string

	// Lookups counts UniformLocation calls per name.
	Lookups map[string]int

	// Uniforms holds the last value written per location.
	Uniforms map[driver.UniformLocation][]float32

	locations map[string]driver.UniformLocation
}

// Driver records calls. The zero value is not usable; call New.
type Driver struct {
	// Caps is returned by Capabilities.
	Caps driver.DeviceCaps

	// CompileHook, when non-nil, runs before a shader compiles. A non-nil
	// result fails the compile.
	CompileHook func(stage driver.ShaderStage, source string) error

	// LinkHook, when non-nil, runs before a program links.
	LinkHook func(vertex, fragment string) error

	// TextureHook, when non-nil, runs before a texture is created.
	TextureHook func(desc driver.TextureDesc) error

	// MakeCurrentHook, when non-nil, runs on MakeCurrent.
	MakeCurrentHook func(t driver.Target) error

	// Calls counts invocations per method name.
	Calls map[string]int

	// Draws holds one snapshot per DrawIndexed call, in issue order.
	Draws []Draw

	// Targets records every MakeCurrent target.
	Targets []driver.Target

	Textures     map[driver.TextureID]*Texture
	Programs     map[driver.ProgramID]*Program
	Framebuffers map[driver.FramebufferID]driver.TextureID

	shaders map[driver.ShaderID]shader
	nextID  uint64
	latched error

	// current state
	enabled     map[driver.Capability]bool
	scissor     driver.Rect
	viewport    driver.Rect
	blend       gputypes.BlendState
	clearColor  gputypes.Color
	framebuffer driver.FramebufferID
	unit        int
	bound       map[int]driver.TextureID
	program     driver.ProgramID
}

// New returns an empty recording driver with generous capabilities.
func New() *Driver {
	return &Driver{
		Caps: driver.DeviceCaps{
			MaxTextureSize:  8192,
			MaxTextureUnits: 8,
			ComponentAlpha:  true,
		},
		Calls:        make(map[string]int),
		Textures:     make(map[driver.TextureID]*Texture),
		Programs:     make(map[driver.ProgramID]*Program),
		Framebuffers: make(map[driver.FramebufferID]driver.TextureID),
		shaders:      make(map[driver.ShaderID]shader),
		enabled:      make(map[driver.Capability]bool),
		bound:        make(map[int]driver.TextureID),
	}
}

// Latch records err so the next GetError reports it. Only the first latched
// error is kept, as with a GL error flag.
func (d *Driver) Latch(err error) {
	if d.latched == nil {
		d.latched = err
	}
}

// Live returns the number of live shaders, programs, textures and
// framebuffers.
func (d *Driver) Live() int {
	return len(d.shaders) + len(d.Programs) + len(d.Textures) + len(d.Framebuffers)
}

// StateCalls returns the number of fixed-function state calls issued.
func (d *Driver) StateCalls() int {
	n := 0
	for _, name := range []string{
		"Enable", "Disable", "Scissor", "BindFramebuffer", "ActiveTexture",
		"ClearColor", "UseProgram", "BlendState",
	} {
		n += d.Calls[name]
	}
	return n
}

// Enabled reports the current value of a capability.
func (d *Driver) Enabled(c driver.Capability) bool { return d.enabled[c] }

// CurrentProgram returns the bound program.
func (d *Driver) CurrentProgram() driver.ProgramID { return d.program }

// CurrentFramebuffer returns the bound framebuffer.
func (d *Driver) CurrentFramebuffer() driver.FramebufferID { return d.framebuffer }

// ResetCounters clears call counters and recorded draws, keeping objects.
func (d *Driver) ResetCounters() {
	d.Calls = make(map[string]int)
	d.Draws = nil
	d.Targets = nil
}

func (d *Driver) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Driver) count(name string) { d.Calls[name]++ }

// Capabilities implements driver.Driver.
func (d *Driver) Capabilities() driver.DeviceCaps {
	d.count("Capabilities")
	return d.Caps
}

// MakeCurrent implements driver.Driver.
func (d *Driver) MakeCurrent(t driver.Target) error {
	d.count("MakeCurrent")
	d.Targets = append(d.Targets, t)
	if d.MakeCurrentHook != nil {
		return d.MakeCurrentHook(t)
	}
	return nil
}

// GetError implements driver.Driver.
func (d *Driver) GetError() error {
	d.count("GetError")
	err := d.latched
	d.latched = nil
	return err
}

// Enable implements driver.Driver.
func (d *Driver) Enable(c driver.Capability) {
	d.count("Enable")
	d.enabled[c] = true
}

// Disable implements driver.Driver.
func (d *Driver) Disable(c driver.Capability) {
	d.count("Disable")
	d.enabled[c] = false
}

// Scissor implements driver.Driver.
func (d *Driver) Scissor(r driver.Rect) {
	d.count("Scissor")
	d.scissor = r
}

// Viewport implements driver.Driver.
func (d *Driver) Viewport(r driver.Rect) {
	d.count("Viewport")
	d.viewport = r
}

// BlendState implements driver.Driver.
func (d *Driver) BlendState(b gputypes.BlendState) {
	d.count("BlendState")
	d.blend = b
}

// ClearColor implements driver.Driver.
func (d *Driver) ClearColor(c gputypes.Color) {
	d.count("ClearColor")
	d.clearColor = c
}

// Clear implements driver.Driver.
func (d *Driver) Clear() { d.count("Clear") }

// BindFramebuffer implements driver.Driver.
func (d *Driver) BindFramebuffer(fb driver.FramebufferID) {
	d.count("BindFramebuffer")
	if _, ok := d.Framebuffers[fb]; !ok && fb != driver.DefaultFramebuffer {
		d.Latch(fmt.Errorf("%w: unknown framebuffer %d", ErrInjected, fb))
	}
	d.framebuffer = fb
}

// ActiveTexture implements driver.Driver.
func (d *Driver) ActiveTexture(unit int) {
	d.count("ActiveTexture")
	d.unit = unit
}

// BindTexture implements driver.Driver.
func (d *Driver) BindTexture(tex driver.TextureID) {
	d.count("BindTexture")
	d.bound[d.unit] = tex
}

// CompileShader implements driver.Driver.
func (d *Driver) CompileShader(stage driver.ShaderStage, source string) (driver.ShaderID, error) {
	d.count("CompileShader")
	if d.CompileHook != nil {
		if err := d.CompileHook(stage, source); err != nil {
			return driver.InvalidID, err
		}
	}
	id := driver.ShaderID(d.id())
	d.shaders[id] = shader{stage: stage, source: source}
	return id, nil
}

// DeleteShader implements driver.Driver.
func (d *Driver) DeleteShader(id driver.ShaderID) {
	d.count("DeleteShader")
	delete(d.shaders, id)
}

// LinkProgram implements driver.Driver.
func (d *Driver) LinkProgram(vertex, fragment driver.ShaderID) (driver.ProgramID, error) {
	d.count("LinkProgram")
	vs, ok := d.shaders[vertex]
	if !ok || vs.stage != driver.StageVertex {
		return driver.InvalidID, fmt.Errorf("%w: bad vertex shader %d", ErrInjected, vertex)
	}
	fs, ok := d.shaders[fragment]
	if !ok || fs.stage != driver.StageFragment {
		return driver.InvalidID, fmt.Errorf("%w: bad fragment shader %d", ErrInjected, fragment)
	}
	if d.LinkHook != nil {
		if err := d.LinkHook(vs.source, fs.source); err != nil {
			return driver.InvalidID, err
		}
	}
	id := driver.ProgramID(d.id())
	d.Programs[id] = &Program{
		Vertex:    vs.source,
		Fragment:  fs.source,
		Lookups:   make(map[string]int),
		Uniforms:  make(map[driver.UniformLocation][]float32),
		locations: make(map[string]driver.UniformLocation),
	}
	return id, nil
}

// DeleteProgram implements driver.Driver.
func (d *Driver) DeleteProgram(id driver.ProgramID) {
	d.count("DeleteProgram")
	delete(d.Programs, id)
	if d.program == id {
		d.program = driver.InvalidID
	}
}

// UseProgram implements driver.Driver.
func (d *Driver) UseProgram(p driver.ProgramID) {
	d.count("UseProgram")
	d.program = p
}

// UniformLocation implements driver.Driver. A name is considered used when
// it occurs in either stage's source.
func (d *Driver) UniformLocation(p driver.ProgramID, name string) driver.UniformLocation {
	d.count("UniformLocation")
	prog, ok := d.Programs[p]
	if !ok {
		return driver.NoUniform
	}
	prog.Lookups[name]++
	if loc, ok := prog.locations[name]; ok {
		return loc
	}
	if !strings.Contains(prog.Vertex, name) && !strings.Contains(prog.Fragment, name) {
		return driver.NoUniform
	}
	loc := driver.UniformLocation(len(prog.locations))
	prog.locations[name] = loc
	return loc
}

func (d *Driver) setUniform(loc driver.UniformLocation, v ...float32) {
	if loc == driver.NoUniform {
		return
	}
	prog, ok := d.Programs[d.program]
	if !ok {
		d.Latch(fmt.Errorf("%w: uniform with no program bound", ErrInjected))
		return
	}
	prog.Uniforms[loc] = append([]float32(nil), v...)
}

// Uniform1i implements driver.Driver.
func (d *Driver) Uniform1i(loc driver.UniformLocation, v int32) {
	d.count("Uniform1i")
	d.setUniform(loc, float32(v))
}

// Uniform1f implements driver.Driver.
func (d *Driver) Uniform1f(loc driver.UniformLocation, v float32) {
	d.count("Uniform1f")
	d.setUniform(loc, v)
}

// Uniform2f implements driver.Driver.
func (d *Driver) Uniform2f(loc driver.UniformLocation, x, y float32) {
	d.count("Uniform2f")
	d.setUniform(loc, x, y)
}

// Uniform4f implements driver.Driver.
func (d *Driver) Uniform4f(loc driver.UniformLocation, x, y, z, w float32) {
	d.count("Uniform4f")
	d.setUniform(loc, x, y, z, w)
}

// UniformMatrix3 implements driver.Driver.
func (d *Driver) UniformMatrix3(loc driver.UniformLocation, m [9]float32) {
	d.count("UniformMatrix3")
	d.setUniform(loc, m[:]...)
}

// CreateTexture implements driver.Driver.
func (d *Driver) CreateTexture(desc driver.TextureDesc) (driver.TextureID, error) {
	d.count("CreateTexture")
	if d.TextureHook != nil {
		if err := d.TextureHook(desc); err != nil {
			return driver.InvalidID, err
		}
	}
	if desc.Width <= 0 || desc.Height <= 0 ||
		desc.Width > d.Caps.MaxTextureSize || desc.Height > d.Caps.MaxTextureSize {
		return driver.InvalidID, fmt.Errorf("%w: texture size %dx%d", ErrInjected, desc.Width, desc.Height)
	}
	id := driver.TextureID(d.id())
	d.Textures[id] = &Texture{
		Desc: desc,
		Data: make([]byte, desc.Width*desc.Height*driver.BytesPerTexel(desc.Format)),
	}
	return id, nil
}

// WriteTexture implements driver.Driver.
func (d *Driver) WriteTexture(tex driver.TextureID, r driver.Rect, data []byte, stride int) {
	d.count("WriteTexture")
	t, ok := d.Textures[tex]
	if !ok {
		d.Latch(fmt.Errorf("%w: write to unknown texture %d", ErrInjected, tex))
		return
	}
	full := driver.Rect{Width: t.Desc.Width, Height: t.Desc.Height}
	if !full.Contains(r) {
		d.Latch(fmt.Errorf("%w: write %v outside texture %v", ErrInjected, r, full))
		return
	}
	bpp := driver.BytesPerTexel(t.Desc.Format)
	for row := 0; row < r.Height; row++ {
		src := data[row*stride : row*stride+r.Width*bpp]
		off := ((r.Y+row)*t.Desc.Width + r.X) * bpp
		copy(t.Data[off:], src)
	}
	t.Writes++
}

// SetSampler implements driver.Driver.
func (d *Driver) SetSampler(tex driver.TextureID, s driver.SamplerState) {
	d.count("SetSampler")
	if t, ok := d.Textures[tex]; ok {
		t.Sampler = s
	}
}

// DeleteTexture implements driver.Driver.
func (d *Driver) DeleteTexture(tex driver.TextureID) {
	d.count("DeleteTexture")
	delete(d.Textures, tex)
}

// CreateFramebuffer implements driver.Driver.
func (d *Driver) CreateFramebuffer(tex driver.TextureID) (driver.FramebufferID, error) {
	d.count("CreateFramebuffer")
	if _, ok := d.Textures[tex]; !ok {
		return driver.InvalidID, fmt.Errorf("%w: framebuffer on unknown texture %d", ErrInjected, tex)
	}
	id := driver.FramebufferID(d.id())
	d.Framebuffers[id] = tex
	return id, nil
}

// DeleteFramebuffer implements driver.Driver.
func (d *Driver) DeleteFramebuffer(fb driver.FramebufferID) {
	d.count("DeleteFramebuffer")
	delete(d.Framebuffers, fb)
}

// DrawIndexed implements driver.Driver.
func (d *Driver) DrawIndexed(call *driver.DrawCall) {
	d.count("DrawIndexed")
	if _, ok := d.Programs[d.program]; !ok {
		d.Latch(fmt.Errorf("%w: draw with no program bound", ErrInjected))
	}
	textures := make(map[int]driver.TextureID, len(d.bound))
	for unit, tex := range d.bound {
		textures[unit] = tex
	}
	d.Draws = append(d.Draws, Draw{
		Program:     d.program,
		Framebuffer: d.framebuffer,
		Textures:    textures,
		Blend:       d.enabled[driver.CapBlend],
		BlendState:  d.blend,
		Scissor:     d.enabled[driver.CapScissor],
		ScissorRect: d.scissor,
		Stencil:     d.enabled[driver.CapStencil],
		Viewport:    d.viewport,
		Vertices:    append([]byte(nil), call.Vertices...),
		Indices:     append([]uint16(nil), call.Indices...),
	})
}

var _ driver.Driver = (*Driver)(nil)
