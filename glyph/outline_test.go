package glyph

import (
	"errors"
	"image"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

func newOutlines(t *testing.T) *Outlines {
	t.Helper()
	o := NewOutlines()
	if err := o.ParseFace(1, goregular.TTF); err != nil {
		t.Fatal(err)
	}
	return o
}

func outlineKey(t *testing.T, o *Outlines, r rune, sub uint8) Key {
	t.Helper()
	gid, err := o.GID(1, r)
	if err != nil {
		t.Fatal(err)
	}
	if gid == 0 && r != 0 {
		t.Fatalf("no glyph for %q", r)
	}
	return Key{Face: 1, GID: gid, Size: fixed.I(32), Subpixel: sub}
}

func coverage(m *image.Alpha) int {
	n := 0
	for _, a := range m.Pix {
		n += int(a)
	}
	return n
}

func TestOutlinesRasterize(t *testing.T) {
	o := newOutlines(t)
	bm, err := o.Rasterize(outlineKey(t, o, 'H', 0))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := bm.Image.(*image.Alpha)
	if !ok {
		t.Fatalf("image is %T, want *image.Alpha", bm.Image)
	}
	if bm.Class() != ClassAlpha {
		t.Errorf("class = %v", bm.Class())
	}
	b := m.Bounds()
	if b.Dx() < 10 || b.Dx() > 32 || b.Dy() < 15 || b.Dy() > 32 {
		t.Errorf("bounds = %v for a 32px H", b)
	}
	// The glyph sits on the baseline: it extends upward from the pen.
	if bm.Bearing.Y >= 0 || bm.Bearing.Y+b.Dy() > 1 {
		t.Errorf("bearing = %v, height %d", bm.Bearing, b.Dy())
	}
	if coverage(m) == 0 {
		t.Error("glyph has no coverage")
	}
}

func TestOutlinesBlank(t *testing.T) {
	o := newOutlines(t)
	bm, err := o.Rasterize(outlineKey(t, o, ' ', 0))
	if err != nil {
		t.Fatal(err)
	}
	if bm.Image != nil {
		t.Errorf("space rasterized to %v", bm.Image.Bounds())
	}
}

func TestOutlinesSubpixel(t *testing.T) {
	o := newOutlines(t)
	base, err := o.Rasterize(outlineKey(t, o, 'l', 0))
	if err != nil {
		t.Fatal(err)
	}
	shifted, err := o.Rasterize(outlineKey(t, o, 'l', 2))
	if err != nil {
		t.Fatal(err)
	}
	a := base.Image.(*image.Alpha)
	b := shifted.Image.(*image.Alpha)
	if a.Bounds() == b.Bounds() && string(a.Pix) == string(b.Pix) {
		t.Error("half-pixel offset produced the same mask")
	}
	// Total coverage is area and does not depend on the offset.
	ca, cb := coverage(a), coverage(b)
	if d := ca - cb; d < -ca/20 || d > ca/20 {
		t.Errorf("coverage %d vs %d", ca, cb)
	}
}

func TestOutlinesUnknownFace(t *testing.T) {
	o := NewOutlines()
	if _, err := o.Rasterize(Key{Face: 9, GID: 1, Size: fixed.I(12)}); !errors.Is(err, ErrUnknownFace) {
		t.Errorf("Rasterize = %v, want ErrUnknownFace", err)
	}
	if _, err := o.GID(9, 'a'); !errors.Is(err, ErrUnknownFace) {
		t.Errorf("GID = %v, want ErrUnknownFace", err)
	}
	if err := o.ParseFace(2, []byte("not a font")); err == nil {
		t.Error("ParseFace accepted garbage")
	}

	o = newOutlines(t)
	o.RemoveFace(1)
	if _, err := o.GID(1, 'a'); !errors.Is(err, ErrUnknownFace) {
		t.Error("RemoveFace kept the face")
	}
}

func TestOutlinesThroughCache(t *testing.T) {
	o := newOutlines(t)
	f := newFixture(t, 0, 256)
	f.cache.rast = o

	g, err := f.cache.Lookup(outlineKey(t, o, 'A', 1))
	if err != nil {
		t.Fatal(err)
	}
	if g.Blank() || g.Class != ClassAlpha || g.Atlas() != f.alpha {
		t.Errorf("glyph = %+v", g)
	}
	if f.alpha.Stats().Resident != 1 {
		t.Error("glyph not resident in the alpha atlas")
	}
}
