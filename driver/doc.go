// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the imperative graphics-device boundary consumed by
// the compositor.
//
// A [Driver] is a thin, GL-flavoured command interface: state toggles,
// program compilation, texture upload, and indexed draws. The compositor
// never inspects the handles a driver returns except to compare them, so an
// implementation may back them with anything (GL names, hal objects, map
// keys).
//
// # Resource Handles
//
// Resources are referenced by opaque integer handles ([TextureID],
// [FramebufferID], [ShaderID], [ProgramID]). The zero value of each handle
// is invalid, except [DefaultFramebuffer] which names the window-system
// framebuffer of the current [Target].
//
// # Error Reporting
//
// State calls do not return errors. Failures are latched by the driver and
// reported by [Driver.GetError], the way a GL driver reports glGetError.
// Calls that create objects (CompileShader, LinkProgram, CreateTexture) return
// their errors directly.
//
// # Implementations
//
//   - backend/wgpu: gogpu/wgpu HAL, shaders compiled by gogpu/naga
//   - driver/drivertest: in-memory recording driver for tests
package driver
