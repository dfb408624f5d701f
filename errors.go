// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"

	"github.com/gogpu/compositor/driver"
)

// Error classes. Errors returned by the device and its caches wrap one of
// these, so callers can branch with errors.Is regardless of which layer
// failed.
var (
	// ErrUnsupported means the request cannot be satisfied right now: an
	// operator without a blend mapping, a signature the shader source
	// cannot express, or an atlas with nothing evictable. Flushing and
	// retrying, or drawing another way, recovers.
	ErrUnsupported = driver.ErrUnsupported

	// ErrOutOfMemory means host or device memory ran out. No partial cache
	// entry is left behind.
	ErrOutOfMemory = driver.ErrOutOfMemory

	// ErrCompile means a program failed to compile or link. The signature
	// stays failed; unrelated signatures are unaffected.
	ErrCompile = driver.ErrCompile

	// ErrDriver wraps errors reported by the device at release.
	ErrDriver = driver.ErrDriver
)

// Device lifecycle errors.
var (
	// ErrDeviceHeld is returned by Acquire while the device is held.
	// Acquisition is not reentrant.
	ErrDeviceHeld = errors.New("compositor: device already acquired")

	// ErrNotAcquired is returned by operations that need the device held.
	ErrNotAcquired = errors.New("compositor: device not acquired")

	// ErrDeviceLost is returned by Acquire once binding the native context
	// has failed. No device call is attempted.
	ErrDeviceLost = errors.New("compositor: device lost")

	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("compositor: device destroyed")

	// ErrNoDestination is returned when drawing without a destination.
	ErrNoDestination = errors.New("compositor: no destination surface")
)
