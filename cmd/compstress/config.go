package main

import (
	"fmt"
	"os"

	"github.com/gogpu/compositor"
	"github.com/pelletier/go-toml/v2"
)

// config is the TOML file layout of compstress.
type config struct {
	Device compositor.Config `toml:"device"`
	Atlas  atlasConfig       `toml:"atlas"`
	Batch  batchConfig       `toml:"batch"`
}

// atlasConfig drives the atlas insertion scenario.
type atlasConfig struct {
	// Size is the dimension of the square alpha atlas.
	Size int `toml:"size"`
	// Inserts is the number of rectangles inserted.
	Inserts int `toml:"inserts"`
	// Width and Height are the rectangle size.
	Width  int `toml:"width"`
	Height int `toml:"height"`
	// Pinned is the working set kept locked while inserting.
	Pinned int `toml:"pinned"`
	// Seed seeds the eviction choice.
	Seed uint64 `toml:"seed"`
}

// batchConfig drives the batching scenario.
type batchConfig struct {
	// Quads is the number of rectangles added.
	Quads int `toml:"quads"`
	// SetupEvery switches the source color after this many quads. Zero
	// keeps one setup for the whole run.
	SetupEvery int `toml:"setup_every"`
	// Width and Height are the window destination size.
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

func defaultConfig() config {
	return config{
		Device: compositor.DefaultConfig(),
		Atlas: atlasConfig{
			Size:    2048,
			Inserts: 40000,
			Width:   10,
			Height:  10,
			Pinned:  64,
			Seed:    1,
		},
		Batch: batchConfig{
			Quads:      100000,
			SetupEvery: 1000,
			Width:      1024,
			Height:     768,
		},
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case c.Atlas.Size <= 0 || c.Atlas.Width <= 0 || c.Atlas.Height <= 0:
		return fmt.Errorf("atlas: size %d and rectangle %dx%d must be positive", c.Atlas.Size, c.Atlas.Width, c.Atlas.Height)
	case c.Atlas.Inserts < 0 || c.Atlas.Pinned < 0:
		return fmt.Errorf("atlas: inserts %d and pinned %d must not be negative", c.Atlas.Inserts, c.Atlas.Pinned)
	case c.Batch.Quads < 0 || c.Batch.SetupEvery < 0:
		return fmt.Errorf("batch: quads %d and setup_every %d must not be negative", c.Batch.Quads, c.Batch.SetupEvery)
	case c.Batch.Width <= 0 || c.Batch.Height <= 0:
		return fmt.Errorf("batch: destination %dx%d must be positive", c.Batch.Width, c.Batch.Height)
	}
	return nil
}

// writeConfig writes cfg as TOML to path.
func writeConfig(path string, cfg config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config files are not secret
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
