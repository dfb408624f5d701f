// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import "errors"

// Error classes shared by every layer above the driver. Package-level
// sentinels wrap one of these so callers can branch with errors.Is on the
// class rather than on the originating package.
var (
	// ErrUnsupported means the request cannot be satisfied right now: a
	// full atlas with nothing evictable, an operator without a blend
	// mapping, or a capability the device lacks. It is always recoverable by
	// flushing and retrying or by choosing another compositing strategy.
	ErrUnsupported = errors.New("driver: unsupported")

	// ErrOutOfMemory means host or device memory was exhausted.
	ErrOutOfMemory = errors.New("driver: out of memory")

	// ErrCompile means a shader failed to compile or a program failed to
	// link.
	ErrCompile = errors.New("driver: shader compile failed")

	// ErrDriver means the device latched an error.
	ErrDriver = errors.New("driver: device error")
)
