// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/glyph"
	"github.com/gogpu/compositor/internal/batch"
	"github.com/gogpu/compositor/internal/gradient"
	"github.com/gogpu/compositor/internal/shader"
	"github.com/gogpu/gputypes"
)

// atlasKind indexes the atlases of a device.
type atlasKind uint8

const (
	atlasAlpha atlasKind = iota
	atlasColor
	atlasImage
	atlasKinds
)

var atlasLabels = [atlasKinds]string{
	atlasAlpha: "glyph-alpha",
	atlasColor: "glyph-color",
	atlasImage: "image",
}

// pin is an atlas slot locked until the pending batch is drawn.
type pin struct {
	atlas *atlas.Atlas
	slot  atlas.Slot
}

type counters struct {
	stateCalls         uint64
	stateSkipped       uint64
	makeCurrent        uint64
	makeCurrentSkipped uint64
	draws              uint64
	driverErrors       uint64
	glyphRetries       uint64
}

// Device is the compositing context of one logical GPU connection.
//
// A Device owns the program, gradient ramp, atlas and glyph caches, the
// pending batch, and a mirror of the driver state it last applied. It is
// used between Acquire and Release; most methods return ErrNotAcquired
// outside that bracket. Acquisition is not reentrant and does not block:
// a second Acquire before Release fails with ErrDeviceHeld. Different
// goroutines may use the device one after another, each bracketing its
// work with Acquire and Release.
type Device struct {
	held      atomic.Bool
	destroyed atomic.Bool

	raw  driver.Driver
	drv  tracked
	cfg  Config
	caps driver.DeviceCaps

	target      driver.Target
	targetValid bool
	lost        error

	state deviceState

	programs *shader.Cache
	ramps    *gradient.Cache
	atlases  [atlasKinds]*atlas.Atlas
	glyphs   *glyph.Cache
	acc      *batch.Accumulator[setup]

	comp     composite
	surfaces map[*TextureSurface]struct{}
	pins     []pin
	counters counters
}

// NewDevice creates a device driving drv. Only the device limits are
// queried; GPU objects are created on first use while the device is held.
//
// Example:
//
//	dev := compositor.NewDevice(drv, compositor.WithIndexCeiling(4096))
//	if err := dev.Acquire(target); err != nil {
//		return err
//	}
//	err := paint(dev)
//	err = dev.Release(err)
func NewDevice(drv driver.Driver, opts ...Option) *Device {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
	}

	d := &Device{
		raw:      drv,
		cfg:      cfg,
		caps:     drv.Capabilities(),
		surfaces: make(map[*TextureSurface]struct{}),
	}
	d.state.invalidate()
	d.drv = tracked{Driver: drv, st: &d.state}

	d.programs = shader.NewCache(d.drv, shader.Options{
		Capacity:  cfg.ProgramCapacity,
		Generator: cfg.ShaderSource,
		Binder:    d,
	})
	d.ramps = gradient.NewCache(d.drv, cfg.RampCacheCapacity, cfg.MaxRampWidth)

	rast := cfg.Rasterizer
	if rast == nil {
		rast = glyph.RasterizerFunc(noRasterizer)
	}
	d.glyphs = glyph.New(rast, d.glyphAtlas)
	d.acc = batch.New(cfg.IndexCeiling, d.draw)
	_ = d.begin()

	Logger().Info("compositor: device created",
		"maxTextureSize", d.caps.MaxTextureSize,
		"componentAlpha", d.caps.ComponentAlpha,
		"indexCeiling", d.acc.Ceiling())
	return d
}

func noRasterizer(key glyph.Key) (glyph.Bitmap, error) {
	return glyph.Bitmap{}, fmt.Errorf("%w: compositor: no glyph rasterizer configured", ErrUnsupported)
}

// Config returns the effective configuration.
func (d *Device) Config() Config { return d.cfg }

// Capabilities returns the device limits queried at creation.
func (d *Device) Capabilities() driver.DeviceCaps { return d.caps }

// Acquire takes the device for the calling section and makes the native
// context of t current. The make-current call is skipped when t equals the
// target of the previous successful call; a zero Target keeps whatever is
// current.
//
// Acquire fails without touching the GPU when the device is held
// (ErrDeviceHeld), destroyed (ErrDestroyed) or lost (ErrDeviceLost). A
// failed make-current marks the device lost until Reset.
func (d *Device) Acquire(t driver.Target) error {
	if d.destroyed.Load() {
		return ErrDestroyed
	}
	if !d.held.CompareAndSwap(false, true) {
		return ErrDeviceHeld
	}
	if d.lost != nil {
		d.held.Store(false)
		return fmt.Errorf("%w: %w", ErrDeviceLost, d.lost)
	}
	if err := d.makeCurrent(t); err != nil {
		d.held.Store(false)
		return err
	}
	// Errors latched by other users of the native context are not ours.
	if err := d.drv.GetError(); err != nil {
		Logger().Debug("compositor: stale driver error at acquire", "err", err)
	}
	return nil
}

// makeCurrent binds t if it differs from the current target. Binding
// another context invalidates the state mirror.
func (d *Device) makeCurrent(t driver.Target) error {
	if t.IsZero() || (d.targetValid && d.target == t) {
		d.counters.makeCurrentSkipped++
		return nil
	}
	if err := d.raw.MakeCurrent(t); err != nil {
		d.targetValid = false
		d.lost = err
		Logger().Warn("compositor: make current failed", "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceLost, err)
	}
	d.counters.makeCurrent++
	d.target, d.targetValid = t, true
	d.state.invalidate()
	return nil
}

// Release draws pending geometry and gives the device up. A driver error
// latched since Acquire is joined to status as an ErrDriver; status itself
// is never replaced. The device stays usable after a driver error.
//
// The usual pattern passes the error of the painting section through:
//
//	err = dev.Release(err)
func (d *Device) Release(status error) error {
	if !d.held.Load() {
		return fold(status, ErrNotAcquired)
	}
	if err := d.acc.Flush(); err != nil {
		status = fold(status, err)
	}
	if err := d.drv.GetError(); err != nil {
		d.counters.driverErrors++
		Logger().Warn("compositor: driver error at release", "err", err)
		status = fold(status, fmt.Errorf("%w: %w", ErrDriver, err))
	}
	d.held.Store(false)
	return status
}

// fold adds err to status, keeping status first.
func fold(status, err error) error {
	if status == nil {
		return err
	}
	return errors.Join(status, err)
}

// Reset forgets every cached driver value and the current make-current
// target, and clears a lost state. Call it when other code has used the
// native context since the device last did.
func (d *Device) Reset() {
	d.state.invalidate()
	d.target, d.targetValid = driver.Target{}, false
	d.lost = nil
	Logger().Info("compositor: device state reset")
}

// Held reports whether the device is acquired.
func (d *Device) Held() bool { return d.held.Load() }

// Lost returns the make-current error that marked the device lost, or nil.
func (d *Device) Lost() error {
	if d.lost == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDeviceLost, d.lost)
}

// Destroy discards pending geometry and deletes every GPU object the device
// created: programs, ramps, atlases and texture surfaces. The native context
// the objects belong to must be current. Every later call reports
// ErrDestroyed. Destroy is idempotent.
func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	d.acc.Discard()
	d.unpinAll()
	d.release(d.comp.src)
	d.release(d.comp.mask)
	d.comp = composite{}

	d.glyphs.Clear()
	for i, a := range d.atlases {
		if a != nil {
			a.Close()
			d.atlases[i] = nil
		}
	}
	d.ramps.Clear()
	d.programs.Clear()
	for s := range d.surfaces {
		s.release()
	}
	d.held.Store(false)

	Logger().Info("compositor: device destroyed",
		"draws", d.counters.draws,
		"driverErrors", d.counters.driverErrors)
}

// ready reports whether the device may be used now.
func (d *Device) ready() error {
	if d.destroyed.Load() {
		return ErrDestroyed
	}
	if !d.held.Load() {
		return ErrNotAcquired
	}
	return nil
}

// atlasOf returns the atlas of kind k, creating it on first use.
func (d *Device) atlasOf(k atlasKind) (*atlas.Atlas, error) {
	if a := d.atlases[k]; a != nil {
		return a, nil
	}
	size := d.cfg.GlyphAtlasSize
	format := gputypes.TextureFormatRGBA8Unorm
	var onEvict atlas.EvictFunc
	switch k {
	case atlasAlpha:
		format = gputypes.TextureFormatR8Unorm
		onEvict = d.glyphs.Evicted
	case atlasColor:
		onEvict = d.glyphs.Evicted
	case atlasImage:
		size = d.cfg.AtlasSize
		onEvict = d.cfg.OnImageEvict
	}
	if limit := d.caps.MaxTextureSize; limit > 0 && size > limit {
		size = limit
	}
	a, err := atlas.New(d.drv, atlas.Config{
		Label:   atlasLabels[k],
		Width:   size,
		Height:  size,
		Format:  format,
		Seed:    d.cfg.EvictionSeed + uint64(k),
		OnEvict: onEvict,
	})
	if err != nil {
		return nil, err
	}
	d.atlases[k] = a
	return a, nil
}

// glyphAtlas is the atlas source of the glyph cache.
func (d *Device) glyphAtlas(c glyph.Class) (*atlas.Atlas, error) {
	if c == glyph.ClassAlpha {
		return d.atlasOf(atlasAlpha)
	}
	return d.atlasOf(atlasColor)
}

// GlyphAtlas returns the glyph atlas of a content class, creating it if
// needed. The device must be held.
func (d *Device) GlyphAtlas(c glyph.Class) (*atlas.Atlas, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	return d.glyphAtlas(c)
}

// ImageAtlas returns the RGBA image atlas, creating it if needed. Owners
// learn about evictions through the OnImageEvict configuration. The device
// must be held.
func (d *Device) ImageAtlas() (*atlas.Atlas, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	return d.atlasOf(atlasImage)
}

// Glyphs returns the glyph cache.
func (d *Device) Glyphs() *glyph.Cache { return d.glyphs }

// Hold pins slot of a until the pending batch is drawn. Call it after adding
// the geometry that samples the slot, so that a ceiling flush triggered by
// that geometry cannot drop the pin early.
func (d *Device) Hold(a *atlas.Atlas, slot atlas.Slot) error {
	if err := d.ready(); err != nil {
		return err
	}
	if err := a.Lock(slot); err != nil {
		return err
	}
	d.pins = append(d.pins, pin{a, slot})
	return nil
}

// unpinAll releases the pins of the batch that was just drawn or dropped.
func (d *Device) unpinAll() {
	for _, p := range d.pins {
		if err := p.atlas.Unlock(p.slot); err != nil &&
			!errors.Is(err, atlas.ErrStaleSlot) && !errors.Is(err, atlas.ErrAtlasClosed) {
			Logger().Warn("compositor: unpin", "slot", p.slot.Rect(), "err", err)
		}
	}
	clear(d.pins)
	d.pins = d.pins[:0]
}

// GradientRamp returns the ramp texture for stops with one more reference.
// Identical stop sequences share one ramp. Drop the reference with
// ReleaseRamp. The device must be held.
func (d *Device) GradientRamp(stops []GradientStop) (*Ramp, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	return d.ramps.GetOrCreate(stops)
}

// ReleaseRamp drops a reference taken with GradientRamp. Unreferenced ramps
// stay cached until the ramp cache needs their room.
func (d *Device) ReleaseRamp(r *Ramp) {
	d.ramps.Release(r)
}

// Ramp is a cached gradient ramp texture.
type Ramp = gradient.Ramp
