package shader

import (
	"fmt"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/cache"
)

// DefaultCapacity is the default number of resident programs.
const DefaultCapacity = 64

// Binder makes a program current. The device context implements it with
// state deduplication; a bare driver.Driver also satisfies it.
type Binder interface {
	UseProgram(id driver.ProgramID)
}

// Options configures a Cache.
type Options struct {
	// Capacity is the number of resident programs. Zero selects
	// DefaultCapacity.
	Capacity int

	// Generator produces stage sources. Nil selects WGSLGenerator.
	Generator Generator

	// Binder binds programs for Use. Nil binds through the driver directly.
	Binder Binder

	// OnDestroy, when non-nil, runs after a program has been deleted so the
	// caller can drop any state that still names it.
	OnDestroy func(id driver.ProgramID)
}

// Stats contains program cache statistics.
type Stats struct {
	cache.Stats

	// Compiles is the number of programs compiled and linked.
	Compiles uint64
	// Failures is the number of signatures that failed to build.
	Failures uint64
}

// Cache maps composition signatures to linked programs.
//
// Programs are not reference counted per lookup; a program is held with
// Acquire while a pending batch draws with it and only unreferenced
// programs are evicted when the cache is full. A signature that fails to
// compile or link is remembered and fails again without another attempt.
//
// Cache is not safe for concurrent use.
type Cache struct {
	drv       driver.Driver
	gen       Generator
	binder    Binder
	onDestroy func(driver.ProgramID)

	entries *cache.Cache[Signature, *Program]
	failed  map[Signature]error

	compiles uint64
	failures uint64
}

// NewCache creates a program cache.
func NewCache(drv driver.Driver, opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Generator == nil {
		opts.Generator = WGSLGenerator{}
	}
	if opts.Binder == nil {
		opts.Binder = drv
	}
	c := &Cache{
		drv:       drv,
		gen:       opts.Generator,
		binder:    opts.Binder,
		onDestroy: opts.OnDestroy,
		failed:    make(map[Signature]error),
	}
	c.entries = cache.New(opts.Capacity, c.destroy)
	return c
}

func (c *Cache) destroy(sig Signature, p *Program) {
	slogger().Debug("shader: program destroyed", "signature", sig, "program", p.id)
	c.drv.DeleteProgram(p.id)
	if c.onDestroy != nil {
		c.onDestroy(p.id)
	}
}

// Get returns the program for sig, building it on a miss. Equal signatures
// always return the same *Program while it is resident.
//
// Build failures wrap driver.ErrCompile, or driver.ErrUnsupported when the
// generator cannot express the signature.
func (c *Cache) Get(sig Signature) (*Program, error) {
	if e, ok := c.entries.Lookup(sig); ok {
		return e.Value(), nil
	}
	if err, ok := c.failed[sig]; ok {
		return nil, err
	}

	p, err := c.build(sig)
	if err != nil {
		c.failures++
		c.failed[sig] = err
		slogger().Warn("shader: program build failed", "signature", sig, "err", err)
		return nil, err
	}
	c.compiles++
	p.entry = c.entries.Insert(sig, p, 1)
	slogger().Debug("shader: program compiled", "signature", sig, "program", p.id, "resident", c.entries.Len())
	return p, nil
}

func (c *Cache) build(sig Signature) (*Program, error) {
	vsrc, fsrc, err := c.gen.Generate(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: shader: generate %v: %w", driver.ErrUnsupported, sig, err)
	}

	vs, err := c.drv.CompileShader(driver.StageVertex, vsrc)
	if err != nil {
		return nil, fmt.Errorf("%w: shader: vertex stage for %v: %w", driver.ErrCompile, sig, err)
	}
	defer c.drv.DeleteShader(vs)

	fs, err := c.drv.CompileShader(driver.StageFragment, fsrc)
	if err != nil {
		return nil, fmt.Errorf("%w: shader: fragment stage for %v: %w", driver.ErrCompile, sig, err)
	}
	defer c.drv.DeleteShader(fs)

	id, err := c.drv.LinkProgram(vs, fs)
	if err != nil {
		return nil, fmt.Errorf("%w: shader: link %v: %w", driver.ErrCompile, sig, err)
	}

	return &Program{
		drv:      c.drv,
		id:       id,
		sig:      sig,
		uniforms: make(map[string]driver.UniformLocation),
	}, nil
}

// Use makes p current and, the first time p is used, assigns the sampler
// units.
func (c *Cache) Use(p *Program) {
	c.binder.UseProgram(p.id)
	p.bindSamplers()
}

// Acquire marks p as referenced by in-flight geometry.
func (c *Cache) Acquire(p *Program) {
	c.entries.Acquire(p.entry)
}

// Release drops a reference taken with Acquire.
func (c *Cache) Release(p *Program) {
	if p == nil || p.entry.Evicted() {
		return
	}
	c.entries.Release(p.entry)
}

// Len returns the number of resident programs.
func (c *Cache) Len() int { return c.entries.Len() }

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Stats:    c.entries.Stats(),
		Compiles: c.compiles,
		Failures: c.failures,
	}
}

// Clear deletes every program and forgets recorded failures.
func (c *Cache) Clear() {
	c.entries.Clear()
	clear(c.failed)
}
