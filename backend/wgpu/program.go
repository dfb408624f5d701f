//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// shaderModule is a compiled stage. Programs hold a reference, so the
// module outlives DeleteShader while a linked program uses it.
type shaderModule struct {
	stage  driver.ShaderStage
	source string
	module hal.ShaderModule
	refs   int
}

// program is a linked vertex/fragment pair and its render pipelines.
type program struct {
	vertex, fragment driver.ShaderID

	sources   string
	uniforms  block
	units     [textureUnits]int
	pipelines map[pipelineKey]hal.RenderPipeline
}

// CompileShader implements driver.Driver. WGSL source is compiled to
// SPIR-V with naga.
func (d *Driver) CompileShader(stage driver.ShaderStage, source string) (driver.ShaderID, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return driver.InvalidID, fmt.Errorf("wgpu: compile %s shader: %w", stage, err)
	}
	words, err := spirvWords(spirv)
	if err != nil {
		return driver.InvalidID, err
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "compositor_" + stage.String(),
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return driver.InvalidID, fmt.Errorf("wgpu: create %s shader module: %w", stage, err)
	}
	id := driver.ShaderID(d.id())
	d.shaders[id] = &shaderModule{stage: stage, source: source, module: module, refs: 1}
	slogger().Debug("wgpu: shader compiled", "stage", stage, "id", id, "words", len(words))
	return id, nil
}

// DeleteShader implements driver.Driver.
func (d *Driver) DeleteShader(id driver.ShaderID) {
	d.unrefShader(id)
}

func (d *Driver) unrefShader(id driver.ShaderID) {
	s, ok := d.shaders[id]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	d.device.DestroyShaderModule(s.module)
	delete(d.shaders, id)
}

// LinkProgram implements driver.Driver. Pipelines are created on first
// draw, when the blend state and target format are known.
func (d *Driver) LinkProgram(vertex, fragment driver.ShaderID) (driver.ProgramID, error) {
	vs, ok := d.shaders[vertex]
	if !ok || vs.stage != driver.StageVertex {
		return driver.InvalidID, fmt.Errorf("wgpu: link: %d is not a vertex shader", vertex)
	}
	fs, ok := d.shaders[fragment]
	if !ok || fs.stage != driver.StageFragment {
		return driver.InvalidID, fmt.Errorf("wgpu: link: %d is not a fragment shader", fragment)
	}
	vs.refs++
	fs.refs++

	p := &program{
		vertex:    vertex,
		fragment:  fragment,
		sources:   vs.source + fs.source,
		units:     [textureUnits]int{0, 1},
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
	}
	id := driver.ProgramID(d.id())
	d.programs[id] = p
	return id, nil
}

// DeleteProgram implements driver.Driver.
func (d *Driver) DeleteProgram(id driver.ProgramID) {
	p, ok := d.programs[id]
	if !ok {
		return
	}
	for _, pl := range p.pipelines {
		d.device.DestroyRenderPipeline(pl)
	}
	d.unrefShader(p.vertex)
	d.unrefShader(p.fragment)
	delete(d.programs, id)
	if d.st.program == id {
		d.st.program = driver.InvalidID
	}
}

// UseProgram implements driver.Driver.
func (d *Driver) UseProgram(id driver.ProgramID) {
	if id != driver.InvalidID {
		if _, ok := d.programs[id]; !ok {
			d.latch(fmt.Errorf("wgpu: use unknown program %d", id))
			return
		}
	}
	d.st.program = id
}

// UniformLocation implements driver.Driver. Members the program sources
// never reference report NoUniform.
func (d *Driver) UniformLocation(id driver.ProgramID, name string) driver.UniformLocation {
	p, ok := d.programs[id]
	if !ok {
		return driver.NoUniform
	}
	loc := location(name)
	if loc == driver.NoUniform {
		return loc
	}
	if loc < samplerLocation && !strings.Contains(p.sources, "u."+name) {
		return driver.NoUniform
	}
	if loc >= samplerLocation && !strings.Contains(p.sources, "textureSample(") {
		return driver.NoUniform
	}
	return loc
}

// current returns the bound program, latching an error when there is none.
func (d *Driver) current() *program {
	p, ok := d.programs[d.st.program]
	if !ok {
		d.latch(errors.New("wgpu: uniform set without a current program"))
		return nil
	}
	return p
}

func (d *Driver) uniform(loc driver.UniformLocation, v ...float32) {
	if p := d.current(); p != nil && !p.uniforms.put(loc, v...) {
		d.latch(fmt.Errorf("wgpu: invalid uniform location %d", loc))
	}
}

// Uniform1i implements driver.Driver. Sampler locations take the texture
// unit the sampler reads from.
func (d *Driver) Uniform1i(loc driver.UniformLocation, v int32) {
	p := d.current()
	if p == nil {
		return
	}
	if loc >= samplerLocation && int(loc-samplerLocation) < textureUnits {
		if v < 0 || int(v) >= textureUnits {
			d.latch(fmt.Errorf("wgpu: sampler unit %d out of range", v))
			return
		}
		p.units[loc-samplerLocation] = int(v)
		return
	}
	d.uniform(loc, float32(v))
}

// Uniform1f implements driver.Driver.
func (d *Driver) Uniform1f(loc driver.UniformLocation, v float32) { d.uniform(loc, v) }

// Uniform2f implements driver.Driver.
func (d *Driver) Uniform2f(loc driver.UniformLocation, x, y float32) { d.uniform(loc, x, y) }

// Uniform4f implements driver.Driver.
func (d *Driver) Uniform4f(loc driver.UniformLocation, x, y, z, w float32) {
	d.uniform(loc, x, y, z, w)
}

// UniformMatrix3 implements driver.Driver.
func (d *Driver) UniformMatrix3(loc driver.UniformLocation, m [9]float32) {
	d.uniform(loc, m[:]...)
}

// pipeline returns the render pipeline of p for the pending blend state and
// the given target format, creating it on first use.
func (d *Driver) pipeline(p *program, format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	key := pipelineKey{blend: d.st.blendOn, format: format}
	if key.blend {
		key.state = d.st.blend
	}
	if pl, ok := p.pipelines[key]; ok {
		return pl, nil
	}

	target := gputypes.ColorTargetState{Format: format, WriteMask: gputypes.ColorWriteMaskAll}
	if key.blend {
		blend := key.state
		target.Blend = &blend
	}
	pl, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "compositor_pipeline",
		Layout: d.pipeLayout,
		Vertex: hal.VertexState{
			Module:     d.shaders[p.vertex].module,
			EntryPoint: "vs_main",
			Buffers:    []gputypes.VertexBufferLayout{driver.VertexLayout()},
		},
		Fragment: &hal.FragmentState{
			Module:     d.shaders[p.fragment].module,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create render pipeline: %w", err)
	}
	p.pipelines[key] = pl
	slogger().Debug("wgpu: pipeline created", "blend", key.blend, "format", format, "variants", len(p.pipelines))
	return pl, nil
}
