package compositor

import (
	"errors"

	"github.com/go-text/typesetting/font"
	"github.com/gogpu/compositor/atlas"
	"github.com/gogpu/compositor/glyph"
	"golang.org/x/image/math/fixed"
)

// PositionedGlyph is a glyph at a pen position on the baseline, in 26.6
// device pixels.
type PositionedGlyph struct {
	GID font.GID
	Pos fixed.Point26_6
}

// GlyphRun is a sequence of glyphs of one face and size.
type GlyphRun struct {
	Face   glyph.FaceID
	Size   fixed.Int26_6
	Glyphs []PositionedGlyph
}

var white = [4]uint8{255, 255, 255, 255}

// AddGlyphRun adds one quad per visible glyph of run.
//
// Alpha glyphs draw the current source through the alpha glyph atlas as
// mask; color glyphs draw the color glyph atlas as source without a mask.
// The caller's source and mask are selected again afterwards. Each glyph's
// atlas slot stays pinned until its quad is drawn. When an atlas is full of
// pinned glyphs the pending batch is drawn, releasing the pins, and the
// lookup is retried once.
func (d *Device) AddGlyphRun(run GlyphRun) (err error) {
	if err := d.ready(); err != nil {
		return err
	}
	if d.comp.dst == nil {
		return ErrNoDestination
	}

	user := d.comp
	defer func() {
		d.comp.src, d.comp.mask = user.src, user.mask
		if berr := d.begin(); berr != nil {
			err = fold(err, berr)
		}
	}()

	class := glyph.Class(255)
	for _, pg := range run.Glyphs {
		key := glyph.Key{
			Face:     run.Face,
			GID:      pg.GID,
			Size:     run.Size,
			Subpixel: glyph.Subpixel(pg.Pos.X),
		}
		g, err := d.lookupGlyph(key)
		if err != nil {
			return err
		}
		if g.Blank() {
			continue
		}
		if g.Class != class {
			if err := d.selectGlyphClass(g, user); err != nil {
				return err
			}
			class = g.Class
		}

		x0 := float32(pg.Pos.X.Floor() + g.Bearing.X)
		y0 := float32(pg.Pos.Y.Round() + g.Bearing.Y)
		x1, y1 := x0+float32(g.Width), y0+float32(g.Height)
		uv := g.UV()
		if err := d.acc.AddQuad(
			Vertex{X: x0, Y: y0, U: uv.U0, V: uv.V0, Color: white},
			Vertex{X: x1, Y: y0, U: uv.U1, V: uv.V0, Color: white},
			Vertex{X: x1, Y: y1, U: uv.U1, V: uv.V1, Color: white},
			Vertex{X: x0, Y: y1, U: uv.U0, V: uv.V1, Color: white},
		); err != nil {
			return err
		}
		if err := d.Hold(g.Atlas(), g.Slot()); err != nil {
			return err
		}
	}
	return nil
}

// selectGlyphClass installs the operands drawing glyphs of g's class.
func (d *Device) selectGlyphClass(g *glyph.Glyph, user composite) error {
	switch g.Class {
	case glyph.ClassAlpha:
		mask, err := d.resolve(AtlasOperand(g.Atlas()), true)
		if err != nil {
			return err
		}
		d.comp.src, d.comp.mask = user.src, mask
	default:
		src, err := d.resolve(AtlasOperand(g.Atlas()), false)
		if err != nil {
			return err
		}
		d.comp.src, d.comp.mask = src, resolved{st: operandState{kind: OperandNone}}
	}
	if err := d.begin(); err != nil {
		return err
	}
	return d.comp.err
}

// lookupGlyph looks key up, drawing the pending batch and retrying once
// when the atlas has no unpinned room.
func (d *Device) lookupGlyph(key glyph.Key) (*glyph.Glyph, error) {
	g, err := d.glyphs.Lookup(key)
	if err == nil || !errors.Is(err, atlas.ErrAtlasFull) {
		return g, err
	}
	d.counters.glyphRetries++
	if ferr := d.acc.Flush(); ferr != nil {
		return nil, ferr
	}
	return d.glyphs.Lookup(key)
}

// RemoveFace drops the cached glyphs of a face that went away, freeing
// their atlas room.
func (d *Device) RemoveFace(face glyph.FaceID) int {
	return d.glyphs.RemoveFace(face)
}
