// Command compstress exercises the compositor caches against the recording
// driver and prints their statistics.
//
// Usage:
//
//	compstress [-config file.toml] [-inserts n] [-pinned n] [-quads n] [-v]
//	compstress -write-config defaults.toml
//
// The atlas scenario inserts equal rectangles into an empty alpha atlas,
// far past its capacity, while a bounded working set stays pinned. It
// fails when an insert finds no room or an owner is notified twice. The
// batching scenario adds rectangles under periodically changing setups and
// reports how the accumulator flushed them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/internal/batch"
)

func main() {
	var (
		configPath   = flag.String("config", "", "TOML configuration file")
		writePath    = flag.String("write-config", "", "write the effective configuration to `file` and exit")
		inserts      = flag.Int("inserts", -1, "atlas inserts (overrides config)")
		pinned       = flag.Int("pinned", -1, "pinned atlas working set (overrides config)")
		quads        = flag.Int("quads", -1, "batched rectangles (overrides config)")
		verbose      = flag.Bool("v", false, "log cache activity to stderr")
		indexCeiling = flag.Int("index-ceiling", 0, "batch index ceiling (overrides config)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *inserts >= 0 {
		cfg.Atlas.Inserts = *inserts
	}
	if *pinned >= 0 {
		cfg.Atlas.Pinned = *pinned
	}
	if *quads >= 0 {
		cfg.Batch.Quads = *quads
	}
	if *indexCeiling > 0 {
		cfg.Device.IndexCeiling = *indexCeiling
	}
	if *verbose {
		compositor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if *writePath != "" {
		if err := writeConfig(*writePath, cfg); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := run(os.Stdout, cfg); err != nil {
		log.Fatal(err)
	}
}

// errAtlasScenario reports a failed atlas scenario.
var errAtlasScenario = errors.New("atlas scenario failed")

func run(w io.Writer, cfg config) error {
	a, err := runAtlas(cfg.Atlas)
	if err != nil {
		return fmt.Errorf("atlas scenario: %w", err)
	}
	fmt.Fprintf(w, "atlas %dx%d, %d inserts of %dx%d, %d pinned\n",
		cfg.Atlas.Size, cfg.Atlas.Size, cfg.Atlas.Inserts, cfg.Atlas.Width, cfg.Atlas.Height, cfg.Atlas.Pinned)
	fmt.Fprintf(w, "  resident %d  insertions %d  evictions %d  callbacks %d  utilization %.1f%%\n",
		a.Stats.Resident, a.Stats.Insertions, a.Stats.Evictions, a.Callbacks, a.Stats.Utilization*100)
	fmt.Fprintf(w, "  unsupported %d  duplicate callbacks %d  pinned evicted %d\n",
		a.Unsupported, a.Duplicates, a.PinnedEvicted)

	b, err := runBatch(cfg.Batch, cfg.Device)
	if err != nil {
		return fmt.Errorf("batch scenario: %w", err)
	}
	st := b.Stats
	fmt.Fprintf(w, "batch %d quads, setup every %d, ceiling %d\n",
		cfg.Batch.Quads, cfg.Batch.SetupEvery, cfg.Device.IndexCeiling)
	fmt.Fprintf(w, "  draws %d  indices %d  programs compiled %d  hits %d\n",
		st.Draws, b.Indices, st.Programs.Compiles, st.Programs.Hits)
	fmt.Fprintf(w, "  flushes: setup %d  ceiling %d  explicit %d\n",
		st.Batch.Flushes[batch.ReasonSetupChange], st.Batch.Flushes[batch.ReasonCeiling], st.Batch.Flushes[batch.ReasonExplicit])
	fmt.Fprintf(w, "  state calls %d  skipped %d\n", st.StateCalls, st.StateCallsSkipped)

	if a.Unsupported > 0 || a.Duplicates > 0 || a.PinnedEvicted > 0 {
		return errAtlasScenario
	}
	return nil
}
