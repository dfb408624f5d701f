package shader

import (
	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/cache"
)

// Program is a linked program cached for one signature.
//
// Uniform locations are looked up on first use and memoized, including names
// the program does not use, which are remembered as driver.NoUniform.
type Program struct {
	drv   driver.Driver
	id    driver.ProgramID
	sig   Signature
	entry *cache.Entry[Signature, *Program]

	uniforms      map[string]driver.UniformLocation
	samplersBound bool
}

// ID returns the device program handle.
func (p *Program) ID() driver.ProgramID { return p.id }

// Signature returns the signature the program was generated for.
func (p *Program) Signature() Signature { return p.sig }

// Refs returns the number of in-flight references.
func (p *Program) Refs() int { return p.entry.Refs() }

// Evicted reports whether the program has been deleted.
func (p *Program) Evicted() bool { return p.entry.Evicted() }

// Uniform returns the location of a uniform, querying the device only the
// first time a name is asked for.
func (p *Program) Uniform(name string) driver.UniformLocation {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := p.drv.UniformLocation(p.id, name)
	p.uniforms[name] = loc
	return loc
}

// The setters below write to the currently bound program and skip unused
// names.

// SetInt sets an integer uniform.
func (p *Program) SetInt(name string, v int32) {
	if loc := p.Uniform(name); loc != driver.NoUniform {
		p.drv.Uniform1i(loc, v)
	}
}

// SetFloat sets a float uniform.
func (p *Program) SetFloat(name string, v float32) {
	if loc := p.Uniform(name); loc != driver.NoUniform {
		p.drv.Uniform1f(loc, v)
	}
}

// SetVec4 sets a vec4 uniform.
func (p *Program) SetVec4(name string, x, y, z, w float32) {
	if loc := p.Uniform(name); loc != driver.NoUniform {
		p.drv.Uniform4f(loc, x, y, z, w)
	}
}

// SetMatrix3 sets a column-major 3x3 matrix uniform.
func (p *Program) SetMatrix3(name string, m [9]float32) {
	if loc := p.Uniform(name); loc != driver.NoUniform {
		p.drv.UniformMatrix3(loc, m)
	}
}

// bindSamplers assigns the fixed sampler units. It runs once per program
// lifetime, with the program bound.
func (p *Program) bindSamplers() {
	if p.samplersBound {
		return
	}
	p.SetInt(UniformSourceSampler, SourceUnit)
	p.SetInt(UniformMaskSampler, MaskUnit)
	p.samplersBound = true
}
