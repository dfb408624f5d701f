package shader

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/driver/drivertest"
)

var (
	solidSig = Signature{Source: OperandConstant, Mask: OperandNone}
	glyphSig = Signature{Source: OperandConstant, Mask: OperandAtlas}
	rampSig  = Signature{Source: OperandLinearGradient, Mask: OperandNone, SourceFilter: driver.FilterLinear}
)

func TestGetReturnsIdenticalProgram(t *testing.T) {
	drv := drivertest.New()
	c := NewCache(drv, Options{})

	a, err := c.Get(Signature{Source: OperandTexture, Mask: OperandAtlas, SourceBorderFade: true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(Signature{Source: OperandTexture, Mask: OperandAtlas, SourceBorderFade: true})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("equal signatures returned different programs")
	}
	if drv.Calls["LinkProgram"] != 1 {
		t.Errorf("LinkProgram called %d times, want 1", drv.Calls["LinkProgram"])
	}

	other, _ := c.Get(Signature{Source: OperandTexture, Mask: OperandAtlas})
	if other == a {
		t.Error("signatures differing in border fade shared a program")
	}

	st := c.Stats()
	if st.Compiles != 2 || st.Hits != 1 || st.Len != 2 {
		t.Errorf("Stats = %+v", st)
	}
	// Stage shaders are released once linked.
	if drv.Live() != 2 {
		t.Errorf("live objects = %d, want 2 programs", drv.Live())
	}
}

func TestSignatureHashAndEqual(t *testing.T) {
	sigs := []Signature{
		{},
		solidSig,
		glyphSig,
		rampSig,
		{Source: OperandConstant, Mask: OperandAtlas, Combine: CombineComponentAlpha},
		{Source: OperandConstant, Mask: OperandAtlas, MaskBorderFade: true},
		{Source: OperandConstant, Mask: OperandAtlas, MaskFilter: driver.FilterLinear},
	}
	for i, a := range sigs {
		copyOf := a
		if !a.Equal(copyOf) || a.Hash() != copyOf.Hash() {
			t.Errorf("signature %d not equal to its copy", i)
		}
		for j, b := range sigs {
			if i != j && a.Equal(b) {
				t.Errorf("signatures %d and %d compare equal", i, j)
			}
		}
	}
}

func TestUniformLookupMemoized(t *testing.T) {
	drv := drivertest.New()
	c := NewCache(drv, Options{})
	p, err := c.Get(solidSig)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if p.Uniform(UniformSourceConstant) == driver.NoUniform {
			t.Fatal("used uniform reported missing")
		}
		if p.Uniform("no_such_uniform") != driver.NoUniform {
			t.Fatal("unknown uniform reported present")
		}
	}
	lookups := drv.Programs[p.ID()].Lookups
	if lookups[UniformSourceConstant] != 1 || lookups["no_such_uniform"] != 1 {
		t.Errorf("device lookups = %v, want one per name", lookups)
	}

	c.Use(p)
	before := drv.Calls["Uniform4f"]
	p.SetVec4("no_such_uniform", 1, 2, 3, 4)
	if drv.Calls["Uniform4f"] != before {
		t.Error("setter wrote an unused uniform")
	}
	p.SetVec4(UniformSourceConstant, 1, 0, 0, 1)
	got := drv.Programs[p.ID()].Uniforms[p.Uniform(UniformSourceConstant)]
	if len(got) != 4 || got[0] != 1 || got[3] != 1 {
		t.Errorf("source_constant = %v", got)
	}
}

func TestSamplersBoundOncePerProgram(t *testing.T) {
	drv := drivertest.New()
	c := NewCache(drv, Options{})
	p, _ := c.Get(glyphSig)

	for range 5 {
		c.Use(p)
	}
	if drv.Calls["Uniform1i"] != 2 {
		t.Errorf("Uniform1i called %d times, want 2 (one per sampler)", drv.Calls["Uniform1i"])
	}
	if drv.Calls["UseProgram"] != 5 {
		t.Errorf("UseProgram called %d times, want 5 through the driver binder", drv.Calls["UseProgram"])
	}
	u := drv.Programs[p.ID()].Uniforms
	if v := u[p.Uniform(UniformSourceSampler)]; len(v) != 1 || v[0] != SourceUnit {
		t.Errorf("source sampler unit = %v, want %d", v, SourceUnit)
	}
	if v := u[p.Uniform(UniformMaskSampler)]; len(v) != 1 || v[0] != MaskUnit {
		t.Errorf("mask sampler unit = %v, want %d", v, MaskUnit)
	}
}

type countingBinder struct {
	drv   driver.Driver
	binds int
}

func (b *countingBinder) UseProgram(id driver.ProgramID) {
	b.binds++
	b.drv.UseProgram(id)
}

func TestUseGoesThroughBinder(t *testing.T) {
	drv := drivertest.New()
	binder := &countingBinder{drv: drv}
	c := NewCache(drv, Options{Binder: binder})
	p, _ := c.Get(solidSig)
	c.Use(p)
	if binder.binds != 1 || drv.CurrentProgram() != p.ID() {
		t.Error("Use did not bind through the configured binder")
	}
}

func TestCompileFailureIsNotRetried(t *testing.T) {
	drv := drivertest.New()
	drv.CompileHook = func(stage driver.ShaderStage, source string) error {
		if stage == driver.StageFragment && strings.Contains(source, "fn source_ramp") {
			return drivertest.ErrInjected
		}
		return nil
	}
	c := NewCache(drv, Options{})

	_, err := c.Get(rampSig)
	if !errors.Is(err, driver.ErrCompile) || !errors.Is(err, drivertest.ErrInjected) {
		t.Fatalf("Get = %v, want ErrCompile wrapping the driver error", err)
	}
	compiles := drv.Calls["CompileShader"]

	_, again := c.Get(rampSig)
	if !errors.Is(again, driver.ErrCompile) {
		t.Errorf("second Get = %v, want the recorded failure", again)
	}
	if drv.Calls["CompileShader"] != compiles {
		t.Error("failed signature was compiled again")
	}
	if drv.Live() != 0 {
		t.Errorf("failed build leaked %d objects", drv.Live())
	}

	// An unrelated signature still builds.
	if _, err := c.Get(solidSig); err != nil {
		t.Errorf("unrelated signature: %v", err)
	}
	if c.Stats().Failures != 1 {
		t.Errorf("Failures = %d, want 1", c.Stats().Failures)
	}

	// Clear forgets failures.
	drv.CompileHook = nil
	c.Clear()
	if _, err := c.Get(rampSig); err != nil {
		t.Errorf("Get after Clear: %v", err)
	}
}

func TestLinkFailure(t *testing.T) {
	drv := drivertest.New()
	drv.LinkHook = func(string, string) error { return drivertest.ErrInjected }
	c := NewCache(drv, Options{})

	if _, err := c.Get(solidSig); !errors.Is(err, driver.ErrCompile) {
		t.Fatalf("Get = %v, want ErrCompile", err)
	}
	if drv.Live() != 0 {
		t.Errorf("failed link leaked %d objects", drv.Live())
	}
	if c.Len() != 0 {
		t.Error("failed link left an entry")
	}
}

func TestGeneratorFailureIsUnsupported(t *testing.T) {
	c := NewCache(drivertest.New(), Options{})
	_, err := c.Get(Signature{Source: OperandAtlas, Mask: OperandAtlas})
	if !errors.Is(err, driver.ErrUnsupported) {
		t.Errorf("Get = %v, want ErrUnsupported", err)
	}
}

func TestCustomGenerator(t *testing.T) {
	drv := drivertest.New()
	var seen []Signature
	gen := GeneratorFunc(func(sig Signature) (string, string, error) {
		seen = append(seen, sig)
		return "vertex viewport", "fragment source_sampler mask_sampler", nil
	})
	c := NewCache(drv, Options{Generator: gen})
	p, err := c.Get(glyphSig)
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != glyphSig {
		t.Errorf("generator saw %v", seen)
	}
	if drv.Programs[p.ID()].Vertex != "vertex viewport" {
		t.Error("generated source not passed to the driver")
	}
}

func TestEvictionSkipsReferencedPrograms(t *testing.T) {
	drv := drivertest.New()
	var destroyed []driver.ProgramID
	c := NewCache(drv, Options{
		Capacity:  2,
		OnDestroy: func(id driver.ProgramID) { destroyed = append(destroyed, id) },
	})

	held, _ := c.Get(solidSig)
	c.Acquire(held)
	idle, _ := c.Get(glyphSig)
	third, _ := c.Get(rampSig)

	if held.Evicted() {
		t.Fatal("referenced program evicted")
	}
	if !idle.Evicted() || third.Evicted() {
		t.Fatal("least recently used idle program not evicted")
	}
	if len(destroyed) != 1 || destroyed[0] != idle.ID() {
		t.Errorf("destroyed = %v, want [%d]", destroyed, idle.ID())
	}
	if _, ok := drv.Programs[idle.ID()]; ok {
		t.Error("evicted program not deleted on the device")
	}

	c.Release(held)
	again, _ := c.Get(glyphSig)
	if again == idle {
		t.Error("evicted program returned from cache")
	}
	if c.Stats().Compiles != 4 {
		t.Errorf("Compiles = %d, want 4", c.Stats().Compiles)
	}
}

func TestDefaultCapacity(t *testing.T) {
	c := NewCache(drivertest.New(), Options{})
	if got := c.Stats().Capacity; got != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", got, DefaultCapacity)
	}
}
