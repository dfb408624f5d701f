package compositor

import (
	"errors"
	"image"
	"testing"

	"github.com/go-text/typesetting/font"
	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/glyph"
	"golang.org/x/image/math/fixed"
)

// squareGlyphs rasterizes every glyph but GID 0 as an n x n alpha square
// sitting on the baseline. GID 0 is blank.
func squareGlyphs(n int) glyph.Rasterizer {
	return glyph.RasterizerFunc(func(key glyph.Key) (glyph.Bitmap, error) {
		if key.GID == 0 {
			return glyph.Bitmap{}, nil
		}
		return glyph.Bitmap{Image: image.NewAlpha(image.Rect(0, 0, n, n)), Bearing: image.Pt(0, -n)}, nil
	})
}

// colorGlyphs rasterizes every glyph as an n x n color image.
func colorGlyphs(n int) glyph.Rasterizer {
	return glyph.RasterizerFunc(func(glyph.Key) (glyph.Bitmap, error) {
		return glyph.Bitmap{Image: image.NewRGBA(image.Rect(0, 0, n, n)), Bearing: image.Pt(0, -n)}, nil
	})
}

// run returns a run of face 1 at 16px with the glyphs 10px apart on the
// baseline y = 50.
func run(gids ...font.GID) GlyphRun {
	r := GlyphRun{Face: 1, Size: fixed.I(16)}
	for i, gid := range gids {
		r.Glyphs = append(r.Glyphs, PositionedGlyph{GID: gid, Pos: fixed.P(10*i, 50)})
	}
	return r
}

func TestGlyphRunDrawsOneBatch(t *testing.T) {
	dev, drv := newTestDevice(t, WithRasterizer(squareGlyphs(8)))
	if err := dev.SetSource(Solid(red)); err != nil {
		t.Fatal(err)
	}
	if err := dev.AddGlyphRun(run(1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	if err := dev.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(drv.Draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(drv.Draws))
	}
	d := drv.Draws[0]
	if got := len(d.Indices); got != 18 {
		t.Errorf("indices = %d, want 18", got)
	}
	a, err := dev.GlyphAtlas(glyph.ClassAlpha)
	if err != nil {
		t.Fatal(err)
	}
	if d.Textures[1] != a.Texture() {
		t.Errorf("mask texture = %d, want alpha atlas %d", d.Textures[1], a.Texture())
	}

	st := dev.Stats()
	if st.AlphaGlyphAtlas.Resident != 3 {
		t.Errorf("resident glyphs = %d, want 3", st.AlphaGlyphAtlas.Resident)
	}
	if st.AlphaGlyphAtlas.Pinned != 0 {
		t.Errorf("pinned after flush = %d, want 0", st.AlphaGlyphAtlas.Pinned)
	}
}

func TestGlyphRunPinsUntilDrawn(t *testing.T) {
	dev, _ := newTestDevice(t, WithRasterizer(squareGlyphs(8)))
	if err := dev.AddGlyphRun(run(1, 2)); err != nil {
		t.Fatal(err)
	}
	// The run ends by selecting the caller's operands again, which draws
	// the glyph batch and releases its pins.
	if got := dev.Stats().AlphaGlyphAtlas.Pinned; got != 0 {
		t.Errorf("pinned after run = %d, want 0", got)
	}

	// Geometry added under the same setup keeps its pins until flushed.
	a, err := dev.GlyphAtlas(glyph.ClassAlpha)
	if err != nil {
		t.Fatal(err)
	}
	g, err := dev.Glyphs().Lookup(glyph.Key{Face: 1, GID: 1, Size: fixed.I(16)})
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetMask(AtlasOperand(a)); err != nil {
		t.Fatal(err)
	}
	if err := dev.AddRect(0, 0, 8, 8, opaque); err != nil {
		t.Fatal(err)
	}
	if err := dev.Hold(a, g.Slot()); err != nil {
		t.Fatal(err)
	}
	if got := a.Stats().Pinned; got != 1 {
		t.Errorf("pinned before flush = %d, want 1", got)
	}
	if err := dev.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := a.Stats().Pinned; got != 0 {
		t.Errorf("pinned after flush = %d, want 0", got)
	}
}

func TestGlyphRunRetriesWhenAtlasFull(t *testing.T) {
	// A 64x64 atlas holds four 32x32 glyphs.
	dev, drv := newTestDevice(t, WithGlyphAtlasSize(64), WithRasterizer(squareGlyphs(32)))
	if err := dev.SetSource(Solid(red)); err != nil {
		t.Fatal(err)
	}
	if err := dev.AddGlyphRun(run(1, 2, 3, 4, 5, 6)); err != nil {
		t.Fatalf("AddGlyphRun() = %v", err)
	}

	st := dev.Stats()
	if st.GlyphRetries < 1 {
		t.Errorf("GlyphRetries = %d, want at least 1", st.GlyphRetries)
	}
	if st.Glyphs.Evicted < 1 {
		t.Errorf("evicted glyphs = %d, want at least 1", st.Glyphs.Evicted)
	}
	indices := 0
	for _, d := range drv.Draws {
		indices += len(d.Indices)
	}
	if indices != 6*6 {
		t.Errorf("indices drawn = %d, want 36", indices)
	}
}

func TestGlyphRunTooLarge(t *testing.T) {
	calls := 0
	big := squareGlyphs(128)
	rast := glyph.RasterizerFunc(func(key glyph.Key) (glyph.Bitmap, error) {
		calls++
		return big.Rasterize(key)
	})
	dev, drv := newTestDevice(t, WithGlyphAtlasSize(64), WithRasterizer(rast))
	if err := dev.SetSource(Solid(red)); err != nil {
		t.Fatal(err)
	}
	if err := dev.AddRect(0, 0, 8, 8, opaque); err != nil {
		t.Fatal(err)
	}

	err := dev.AddGlyphRun(run(1))
	if !errors.Is(err, ErrUnsupported) || !errors.Is(err, atlas.ErrTooLarge) {
		t.Errorf("AddGlyphRun() = %v, want ErrTooLarge matching ErrUnsupported", err)
	}
	// An oversize glyph can never fit, so the pending rectangle is not
	// flushed to make room and the glyph is rasterized once.
	if got := dev.Stats().GlyphRetries; got != 0 {
		t.Errorf("GlyphRetries = %d, want 0", got)
	}
	if calls != 1 {
		t.Errorf("rasterizer calls = %d, want 1", calls)
	}
	if len(drv.Draws) != 0 {
		t.Errorf("draws before Flush = %d, want 0", len(drv.Draws))
	}
}

func TestColorGlyphsDrawAsSource(t *testing.T) {
	dev, drv := newTestDevice(t, WithRasterizer(colorGlyphs(8)))
	if err := dev.SetSource(Solid(red)); err != nil {
		t.Fatal(err)
	}
	if err := dev.AddGlyphRun(run(1, 2)); err != nil {
		t.Fatal(err)
	}
	if len(drv.Draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(drv.Draws))
	}
	a, err := dev.GlyphAtlas(glyph.ClassColor)
	if err != nil {
		t.Fatal(err)
	}
	if drv.Draws[0].Textures[0] != a.Texture() {
		t.Errorf("source texture = %d, want color atlas %d", drv.Draws[0].Textures[0], a.Texture())
	}
	if st := dev.Stats(); st.ColorGlyphAtlas.Resident != 2 || st.AlphaGlyphAtlas.Resident != 0 {
		t.Errorf("resident color=%d alpha=%d, want 2 and 0", st.ColorGlyphAtlas.Resident, st.AlphaGlyphAtlas.Resident)
	}
}

func TestGlyphRunRestoresOperands(t *testing.T) {
	dev, _ := newTestDevice(t, WithRasterizer(squareGlyphs(8)))
	if err := dev.SetSource(Solid(blue)); err != nil {
		t.Fatal(err)
	}
	want := dev.comp
	if err := dev.AddGlyphRun(run(1, 2)); err != nil {
		t.Fatal(err)
	}
	if dev.comp.src.st != want.src.st {
		t.Errorf("source after run = %+v, want %+v", dev.comp.src.st, want.src.st)
	}
	if dev.comp.mask.st.kind != OperandNone {
		t.Errorf("mask after run = %s, want none", dev.comp.mask.st.kind)
	}
}

func TestBlankGlyphsSkipped(t *testing.T) {
	dev, drv := newTestDevice(t, WithRasterizer(squareGlyphs(8)))
	if err := dev.AddGlyphRun(run(0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := dev.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(drv.Draws) != 0 {
		t.Errorf("draws = %d for blank glyphs, want 0", len(drv.Draws))
	}
	if st := dev.Stats().Glyphs; st.Len != 1 || st.Misses != 1 || st.Hits != 2 {
		t.Errorf("glyph stats = %+v, want one cached blank glyph hit twice", st)
	}
}

func TestGlyphSubpixelPositions(t *testing.T) {
	dev, _ := newTestDevice(t, WithRasterizer(squareGlyphs(8)))
	r := GlyphRun{Face: 1, Size: fixed.I(16), Glyphs: []PositionedGlyph{
		{GID: 1, Pos: fixed.Point26_6{X: fixed.I(0), Y: fixed.I(50)}},
		{GID: 1, Pos: fixed.Point26_6{X: fixed.I(10) + 32, Y: fixed.I(50)}},
		{GID: 1, Pos: fixed.Point26_6{X: fixed.I(20), Y: fixed.I(50)}},
	}}
	if err := dev.AddGlyphRun(r); err != nil {
		t.Fatal(err)
	}
	if st := dev.Stats().Glyphs; st.Misses != 2 || st.Hits != 1 {
		t.Errorf("glyph stats = %+v, want 2 misses and 1 hit", st)
	}
}

func TestRemoveFace(t *testing.T) {
	dev, _ := newTestDevice(t, WithRasterizer(squareGlyphs(8)))
	if err := dev.AddGlyphRun(run(1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	other := run(1)
	other.Face = 2
	if err := dev.AddGlyphRun(other); err != nil {
		t.Fatal(err)
	}
	if err := dev.Flush(); err != nil {
		t.Fatal(err)
	}

	if n := dev.RemoveFace(1); n != 3 {
		t.Errorf("RemoveFace(1) = %d, want 3", n)
	}
	st := dev.Stats()
	if st.Glyphs.Len != 1 {
		t.Errorf("glyphs left = %d, want 1", st.Glyphs.Len)
	}
	if st.AlphaGlyphAtlas.Resident != 1 {
		t.Errorf("resident = %d, want 1", st.AlphaGlyphAtlas.Resident)
	}
}

func TestGlyphRunWithoutRasterizer(t *testing.T) {
	dev, _ := newTestDevice(t)
	if err := dev.AddGlyphRun(run(1)); !errors.Is(err, ErrUnsupported) {
		t.Errorf("AddGlyphRun() = %v, want ErrUnsupported", err)
	}
}
