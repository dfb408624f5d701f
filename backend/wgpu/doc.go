// Package wgpu implements driver.Driver on the gogpu/wgpu HAL.
//
// The compositor talks to its device through a GL-flavoured command
// interface. This package maps that interface onto WebGPU objects:
//
//   - Shader stages are WGSL, compiled to SPIR-V by gogpu/naga and loaded
//     as hal shader modules.
//   - A linked program owns a CPU copy of its uniform block and one render
//     pipeline per blend state and target format, created on first draw.
//   - Textures carry a default view and a sampler state. Samplers are
//     shared between textures with equal state.
//   - Each DrawIndexed or Clear records one render pass, submits it and
//     waits on a fence.
//
// # Targets
//
// Window-system drawables are wrapped in a [Surface] and bound with
// MakeCurrent:
//
//	drv, err := wgpu.New(provider)
//	if err != nil {
//		return err
//	}
//	target := driver.Target{Drawable: &wgpu.Surface{View: view, Width: w, Height: h}}
//	dev := compositor.NewDevice(drv)
//
// Scissor and viewport rectangles of the default framebuffer use a
// bottom-left origin and are converted to the top-left origin of render
// passes. Offscreen framebuffers keep row 0 of the texture at device row 0.
//
// # Build Tags
//
// The driver requires a GPU stack. Build with -tags nogpu to exclude it;
// only the pure conversion helpers remain.
package wgpu
