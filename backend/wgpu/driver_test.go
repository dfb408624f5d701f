//go:build !nogpu

package wgpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/compositor/internal/shader"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
)

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without HAL accessors.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device   { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue     { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatBGRA8Unorm
}
func (m *mockProvider) AdapterInfo() gpucontext.AdapterInfo { return gpucontext.AdapterInfo{} }

// foreignProvider exposes HAL accessors that return non-HAL values.
type foreignProvider struct {
	mockProvider
}

func (foreignProvider) HalDevice() any { return "device" }
func (foreignProvider) HalQueue() any  { return "queue" }

func TestNewRejectsProviderWithoutHAL(t *testing.T) {
	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
	}{
		{"no accessors", &mockProvider{}},
		{"foreign types", &foreignProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.provider)
			if !errors.Is(err, ErrNoHAL) {
				t.Errorf("New() error = %v, want ErrNoHAL", err)
			}
			if d != nil {
				t.Error("New() returned a driver on error")
			}
		})
	}
}

// TestGeneratedShadersCompile compiles the generated WGSL of every
// signature the compositor builds with naga.
func TestGeneratedShadersCompile(t *testing.T) {
	sigs := []shader.Signature{
		{Source: shader.OperandConstant},
		{Source: shader.OperandTexture, SourceBorderFade: true},
		{Source: shader.OperandConstant, Mask: shader.OperandAlphaAtlas},
		{Source: shader.OperandAtlas},
		{Source: shader.OperandLinearGradient, SourceBorderFade: true},
		{Source: shader.OperandRadialGradientA0},
		{Source: shader.OperandRadialGradientNone},
		{Source: shader.OperandRadialGradientExt, Mask: shader.OperandTexture},
		{Source: shader.OperandConstant, Mask: shader.OperandAtlas, Combine: shader.CombineComponentAlpha},
		{Source: shader.OperandConstant, Mask: shader.OperandAtlas, Combine: shader.CombineComponentAlphaSource},
	}
	for _, sig := range sigs {
		t.Run(sig.String(), func(t *testing.T) {
			vs, fs, err := shader.WGSLGenerator{}.Generate(sig)
			if err != nil {
				t.Fatalf("Generate() = %v", err)
			}
			for stage, src := range map[string]string{"vertex": vs, "fragment": fs} {
				spirv, err := naga.Compile(src)
				if err != nil {
					msg := err.Error()
					if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
						t.Skipf("Skipping: naga feature not yet implemented: %v", err)
					}
					t.Fatalf("%s stage: %v\n%s", stage, err, src)
				}
				if _, err := spirvWords(spirv); err != nil {
					t.Errorf("%s stage: %v", stage, err)
				}
			}
		})
	}
}
