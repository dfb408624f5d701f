// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package batch accumulates tessellated geometry into indexed draw calls.
//
// An Accumulator holds the vertices and 16-bit indices of one composition
// setup. Geometry arrives as triangles, quads, triangle fans or fixed-point
// trapezoids; consecutive vertices that are exactly equal share one vertex
// slot. The batch is handed to a flush function when the setup changes,
// when the next primitive would cross the index ceiling, or on an explicit
// Flush:
//
//	acc := batch.New(0, func(setup mySetup, call *driver.DrawCall, _ batch.FlushReason) error {
//		bind(setup)
//		drv.DrawIndexed(call)
//		return nil
//	})
//	acc.Begin(setupA)
//	acc.AddQuad(v0, v1, v2, v3)
//	acc.Flush()
package batch
