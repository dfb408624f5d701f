package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/compositor/internal/batch"
)

func smallConfig() config {
	cfg := defaultConfig()
	cfg.Atlas = atlasConfig{Size: 128, Inserts: 2000, Width: 10, Height: 10, Pinned: 16, Seed: 7}
	cfg.Batch = batchConfig{Quads: 2500, SetupEvery: 1000, Width: 256, Height: 256}
	cfg.Device.IndexCeiling = 60000
	return cfg
}

func TestRunAtlas(t *testing.T) {
	rep, err := runAtlas(smallConfig().Atlas)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Unsupported != 0 {
		t.Errorf("Unsupported = %d, want 0", rep.Unsupported)
	}
	if rep.Duplicates != 0 || rep.PinnedEvicted != 0 {
		t.Errorf("duplicates = %d, pinned evicted = %d, want 0", rep.Duplicates, rep.PinnedEvicted)
	}
	if rep.Stats.Evictions == 0 {
		t.Fatal("atlas never evicted")
	}
	if uint64(rep.Callbacks) != rep.Stats.Evictions {
		t.Errorf("callbacks = %d, evictions = %d", rep.Callbacks, rep.Stats.Evictions)
	}
	if rep.Stats.Insertions != 2000 {
		t.Errorf("insertions = %d, want 2000", rep.Stats.Insertions)
	}
}

func TestRunBatch(t *testing.T) {
	cfg := smallConfig()
	rep, err := runBatch(cfg.Batch, cfg.Device)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Stats.Draws != 3 {
		t.Errorf("draws = %d, want 3", rep.Stats.Draws)
	}
	if rep.Indices != 2500*6 {
		t.Errorf("indices = %d, want %d", rep.Indices, 2500*6)
	}
	if got := rep.Stats.Batch.Flushes[batch.ReasonSetupChange]; got != 2 {
		t.Errorf("setup flushes = %d, want 2", got)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stress.toml")
	src := `
[device]
index_ceiling = 600

[atlas]
size = 256
inserts = 10
width = 8
height = 8

[batch]
quads = 5
width = 64
height = 64
`
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device.IndexCeiling != 600 || cfg.Atlas.Size != 256 || cfg.Batch.Quads != 5 {
		t.Errorf("loaded %+v", cfg)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Atlas.Pinned != defaultConfig().Atlas.Pinned {
		t.Errorf("pinned = %d, want default %d", cfg.Atlas.Pinned, defaultConfig().Atlas.Pinned)
	}

	out := filepath.Join(dir, "out.toml")
	if err := writeConfig(out, cfg); err != nil {
		t.Fatal(err)
	}
	again, err := loadConfig(out)
	if err != nil {
		t.Fatal(err)
	}
	if again.Atlas != cfg.Atlas || again.Batch != cfg.Batch || again.Device.IndexCeiling != 600 {
		t.Errorf("rewritten config = %+v, want %+v", again, cfg)
	}
}

func TestConfigValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[atlas]\nsize = -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Error("negative atlas size accepted")
	}
	if _, err := loadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestRunReport(t *testing.T) {
	var buf bytes.Buffer
	if err := run(&buf, smallConfig()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"atlas 128x128", "batch 2500 quads", "flushes: setup 2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("report lacks %q:\n%s", want, buf.String())
		}
	}
}
