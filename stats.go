package compositor

import (
	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/glyph"
	"github.com/gogpu/compositor/internal/batch"
	"github.com/gogpu/compositor/internal/cache"
	"github.com/gogpu/compositor/internal/shader"
)

// Statistics types of the device caches.
type (
	ProgramStats = shader.Stats
	CacheStats   = cache.Stats
	AtlasStats   = atlas.Stats
	GlyphStats   = glyph.Stats
	BatchStats   = batch.Stats
)

// Stats is a snapshot of device statistics.
type Stats struct {
	Programs ProgramStats
	Ramps    CacheStats
	Glyphs   GlyphStats

	// Atlas statistics are zero for atlases not created yet.
	AlphaGlyphAtlas AtlasStats
	ColorGlyphAtlas AtlasStats
	ImageAtlas      AtlasStats

	Batch BatchStats

	// Draws counts DrawIndexed calls; a component-alpha flush issues two.
	Draws uint64

	// StateCalls and StateCallsSkipped count state setters that reached the
	// driver and that were deduplicated.
	StateCalls        uint64
	StateCallsSkipped uint64

	// MakeCurrent and MakeCurrentSkipped count native context binds issued
	// and avoided.
	MakeCurrent        uint64
	MakeCurrentSkipped uint64

	// DriverErrors counts driver errors reported at Release.
	DriverErrors uint64

	// GlyphRetries counts glyph lookups retried after a flush freed atlas
	// room.
	GlyphRetries uint64
}

// Stats returns a snapshot of device statistics.
func (d *Device) Stats() Stats {
	s := Stats{
		Programs:           d.programs.Stats(),
		Ramps:              d.ramps.Stats(),
		Glyphs:             d.glyphs.Stats(),
		Batch:              d.acc.Stats(),
		Draws:              d.counters.draws,
		StateCalls:         d.counters.stateCalls,
		StateCallsSkipped:  d.counters.stateSkipped,
		MakeCurrent:        d.counters.makeCurrent,
		MakeCurrentSkipped: d.counters.makeCurrentSkipped,
		DriverErrors:       d.counters.driverErrors,
		GlyphRetries:       d.counters.glyphRetries,
	}
	for k, dst := range [atlasKinds]*AtlasStats{
		atlasAlpha: &s.AlphaGlyphAtlas,
		atlasColor: &s.ColorGlyphAtlas,
		atlasImage: &s.ImageAtlas,
	} {
		if a := d.atlases[k]; a != nil && !a.IsClosed() {
			*dst = a.Stats()
		}
	}
	return s
}
