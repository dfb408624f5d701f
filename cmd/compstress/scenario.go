package main

import (
	"errors"
	"fmt"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/driver/drivertest"
	"github.com/gogpu/gputypes"
)

// atlasReport is the outcome of the atlas scenario.
type atlasReport struct {
	Stats atlas.Stats

	// Unsupported counts inserts that found no room.
	Unsupported int
	// Callbacks counts eviction notifications.
	Callbacks int
	// Duplicates counts owners notified more than once.
	Duplicates int
	// PinnedEvicted counts notifications for owners still pinned.
	PinnedEvicted int
}

// runAtlas inserts cfg.Inserts rectangles into an empty alpha atlas while
// keeping the most recent cfg.Pinned of them locked.
func runAtlas(cfg atlasConfig) (atlasReport, error) {
	var (
		rep     atlasReport
		evicted = make(map[atlas.OwnerID]bool)
		pinned  = make(map[atlas.OwnerID]bool)
	)
	a, err := atlas.New(drivertest.New(), atlas.Config{
		Label:  "compstress-atlas",
		Width:  cfg.Size,
		Height: cfg.Size,
		Format: gputypes.TextureFormatR8Unorm,
		Seed:   cfg.Seed,
		OnEvict: func(owner atlas.OwnerID, _ atlas.Slot) {
			rep.Callbacks++
			if evicted[owner] {
				rep.Duplicates++
			}
			if pinned[owner] {
				rep.PinnedEvicted++
			}
			evicted[owner] = true
		},
	})
	if err != nil {
		return rep, err
	}
	defer a.Close()

	type held struct {
		owner atlas.OwnerID
		slot  atlas.Slot
	}
	window := make([]held, 0, cfg.Pinned+1)

	for i := range cfg.Inserts {
		owner := atlas.OwnerID(i + 1)
		slot, err := a.Insert(cfg.Width, cfg.Height, owner)
		if errors.Is(err, driver.ErrUnsupported) {
			rep.Unsupported++
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("insert %d: %w", i, err)
		}
		if cfg.Pinned == 0 {
			continue
		}
		if err := a.Lock(slot); err != nil {
			return rep, fmt.Errorf("lock %d: %w", i, err)
		}
		pinned[owner] = true
		window = append(window, held{owner, slot})
		if len(window) > cfg.Pinned {
			old := window[0]
			window = window[1:]
			if err := a.Unlock(old.slot); err != nil {
				return rep, fmt.Errorf("unlock %d: %w", old.owner, err)
			}
			delete(pinned, old.owner)
		}
	}
	rep.Stats = a.Stats()
	return rep, nil
}

// target names the window drawable of the batching scenario.
var target = driver.Target{Drawable: "compstress"}

// batchReport is the outcome of the batching scenario.
type batchReport struct {
	Stats   compositor.Stats
	Indices int
}

// runBatch adds cfg.Quads rectangles, switching the source color every
// cfg.SetupEvery quads, and releases the device.
func runBatch(cfg batchConfig, dev compositor.Config) (batchReport, error) {
	var rep batchReport
	drv := drivertest.New()
	d := compositor.NewDevice(drv, compositor.WithConfig(dev))
	defer d.Destroy()

	if err := d.Acquire(target); err != nil {
		return rep, err
	}
	err := addQuads(d, cfg)
	if err := d.Release(err); err != nil {
		return rep, err
	}

	rep.Stats = d.Stats()
	for _, draw := range drv.Draws {
		rep.Indices += len(draw.Indices)
	}
	return rep, nil
}

var palette = []gputypes.Color{
	{R: 1, A: 1},
	{G: 1, A: 1},
	{B: 1, A: 1},
}

func addQuads(d *compositor.Device, cfg batchConfig) error {
	if err := d.SetDestination(compositor.NewWindowSurface(target, cfg.Width, cfg.Height)); err != nil {
		return err
	}
	if err := d.SetSource(compositor.Solid(palette[0])); err != nil {
		return err
	}
	white := [4]uint8{255, 255, 255, 255}
	for i := range cfg.Quads {
		if cfg.SetupEvery > 0 && i > 0 && i%cfg.SetupEvery == 0 {
			c := palette[(i/cfg.SetupEvery)%len(palette)]
			if err := d.SetSource(compositor.Solid(c)); err != nil {
				return err
			}
		}
		x := float32((i * 7) % cfg.Width)
		y := float32((i * 13) % cfg.Height)
		if err := d.AddRect(x, y, 4, 4, white); err != nil {
			return err
		}
	}
	return nil
}
