package glyph

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/go-text/typesetting/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// ErrUnknownFace is returned by Outlines for faces never added.
var ErrUnknownFace = errors.New("glyph: unknown face")

// Outlines is a Rasterizer that fills the outlines of sfnt fonts into
// alpha masks. Glyphs are rendered at the subpixel offset of their key.
//
// Outlines is not safe for concurrent use.
type Outlines struct {
	faces map[FaceID]*sfnt.Font
	buf   sfnt.Buffer
	rast  vector.Rasterizer
}

// NewOutlines creates a rasterizer with no faces.
func NewOutlines() *Outlines {
	return &Outlines{faces: make(map[FaceID]*sfnt.Font)}
}

// AddFace registers f under id, replacing any face with the same id.
// Replacing a face does not drop glyphs cached for the old one; call
// Cache.RemoveFace first.
func (o *Outlines) AddFace(id FaceID, f *sfnt.Font) {
	o.faces[id] = f
}

// ParseFace parses TrueType or OpenType data and registers it under id.
func (o *Outlines) ParseFace(id FaceID, data []byte) error {
	f, err := sfnt.Parse(data)
	if err != nil {
		return fmt.Errorf("glyph: parse face %d: %w", id, err)
	}
	o.AddFace(id, f)
	return nil
}

// RemoveFace forgets the face registered under id.
func (o *Outlines) RemoveFace(id FaceID) {
	delete(o.faces, id)
}

// GID returns the glyph of r in face id, or 0 when the face has none.
func (o *Outlines) GID(id FaceID, r rune) (font.GID, error) {
	f, ok := o.faces[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFace, id)
	}
	gi, err := f.GlyphIndex(&o.buf, r)
	if err != nil {
		return 0, fmt.Errorf("glyph: index of %q: %w", r, err)
	}
	return font.GID(gi), nil
}

// Rasterize implements Rasterizer. Glyphs without contours, such as the
// space, are blank.
func (o *Outlines) Rasterize(key Key) (Bitmap, error) {
	f, ok := o.faces[key.Face]
	if !ok {
		return Bitmap{}, fmt.Errorf("%w: %d", ErrUnknownFace, key.Face)
	}
	segs, err := f.LoadGlyph(&o.buf, sfnt.GlyphIndex(key.GID), key.Size, nil) //nolint:gosec // GIDs of sfnt fonts fit in 16 bits
	if err != nil {
		return Bitmap{}, err
	}
	if len(segs) == 0 {
		return Bitmap{}, nil
	}

	dx := float32(key.Subpixel) / SubpixelSteps
	b := segs.Bounds()
	x0 := int(math.Floor(float64(toFloat(b.Min.X) + dx)))
	y0 := int(math.Floor(float64(toFloat(b.Min.Y))))
	x1 := int(math.Ceil(float64(toFloat(b.Max.X) + dx)))
	y1 := int(math.Ceil(float64(toFloat(b.Max.Y))))
	if x1 <= x0 || y1 <= y0 {
		return Bitmap{}, nil
	}

	// Segment coordinates have y pointing down, as the rasterizer does.
	ox, oy := dx-float32(x0), -float32(y0)
	pt := func(p fixed.Point26_6) (float32, float32) {
		return toFloat(p.X) + ox, toFloat(p.Y) + oy
	}
	o.rast.Reset(x1-x0, y1-y0)
	for _, s := range segs {
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			o.rast.MoveTo(pt(s.Args[0]))
		case sfnt.SegmentOpLineTo:
			o.rast.LineTo(pt(s.Args[0]))
		case sfnt.SegmentOpQuadTo:
			cx, cy := pt(s.Args[0])
			x, y := pt(s.Args[1])
			o.rast.QuadTo(cx, cy, x, y)
		case sfnt.SegmentOpCubeTo:
			c1x, c1y := pt(s.Args[0])
			c2x, c2y := pt(s.Args[1])
			x, y := pt(s.Args[2])
			o.rast.CubeTo(c1x, c1y, c2x, c2y, x, y)
		}
	}
	o.rast.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, x1-x0, y1-y0))
	o.rast.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return Bitmap{Image: mask, Bearing: image.Pt(x0, y0)}, nil
}

func toFloat(v fixed.Int26_6) float32 { return float32(v) / 64 }
