// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compositor is a GPU resource cache and batched compositing
// engine for 2D rendering.
//
// # Overview
//
// A Device sits between an immediate-mode 2D renderer and a GL-style
// driver. It caches shader programs keyed by composition signature,
// packs glyphs and images into texture atlases, renders gradient stops
// into ramp textures, and accumulates triangles, fans and trapezoids into
// indexed draws that share one composition setup.
//
// # Quick Start
//
//	dev := compositor.NewDevice(drv,
//		compositor.WithIndexCeiling(60000),
//		compositor.WithRasterizer(fonts),
//	)
//	defer dev.Destroy()
//
//	if err := dev.Acquire(target); err != nil {
//		return err
//	}
//	err := paint(dev)
//	return dev.Release(err)
//
// where paint selects a destination and operands and adds geometry:
//
//	dev.SetDestination(compositor.NewWindowSurface(target, w, h))
//	dev.SetSource(compositor.Solid(gputypes.Color{R: 1, A: 1}))
//	dev.AddRect(10, 10, 100, 50, white)
//
// # Acquire and Release
//
// Every operation that touches the GPU runs between Acquire and Release.
// Acquire binds the native context only when the target changes. Release
// draws pending geometry and folds the driver's error state into the
// status passed in. Acquire is not re-entrant; a nested call fails with
// ErrDeviceHeld.
//
// # Batching
//
// Geometry is collected until the composition setup (destination,
// source, mask, operator, clip) changes, the index ceiling is reached, or
// Flush or Release is called. Each batch is one DrawIndexed call, or two
// for an OVER composite through a component-alpha mask.
//
// # Errors
//
// Errors wrap one of ErrUnsupported, ErrOutOfMemory, ErrCompile or
// ErrDriver, or are one of the lifecycle errors. ErrUnsupported is
// transient: a full atlas, for example, has room again once pending
// geometry is drawn.
//
// # Concurrency
//
// A Device is not safe for concurrent use. Acquire guards against nested
// use on one goroutine; callers sharing a device between goroutines must
// serialize the Acquire/Release brackets themselves.
package compositor
