// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyph

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-text/typesetting/font"
	"github.com/gogpu/compositor/atlas"
	"golang.org/x/image/math/fixed"
)

// ErrNoAtlas is returned when no atlas exists for a glyph's content class.
var ErrNoAtlas = errors.New("glyph: no atlas for content class")

// FaceID identifies a font face. The cache never interprets it.
type FaceID uint64

// SubpixelSteps is the number of horizontal subpixel positions rasterized
// per glyph.
const SubpixelSteps = 4

// Key identifies one rasterization of a glyph.
type Key struct {
	Face     FaceID
	GID      font.GID
	Size     fixed.Int26_6
	Subpixel uint8
}

// Subpixel returns the subpixel step of a pen x position.
func Subpixel(x fixed.Int26_6) uint8 {
	frac := int(x & 63)
	return uint8(frac * SubpixelSteps / 64)
}

// Class is the content class of a glyph mask. Each class lives in its own
// atlas because texture formats and blending differ.
type Class uint8

// Content classes.
const (
	// ClassAlpha is coverage-only content, stored in a single-channel atlas
	// and used as a mask.
	ClassAlpha Class = iota
	// ClassColor is premultiplied color content (emoji, bitmap fonts), used
	// as a source.
	ClassColor
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassAlpha:
		return "alpha"
	case ClassColor:
		return "color"
	default:
		return fmt.Sprintf("Class(%d)", c)
	}
}

// Bitmap is a rasterized glyph.
type Bitmap struct {
	// Image is the glyph image. *image.Alpha is alpha content; anything
	// else is color content. A nil or empty image is a blank glyph.
	Image image.Image

	// Bearing is the offset of the image's top-left corner from the pen
	// position, in pixels (y grows down).
	Bearing image.Point
}

// Class returns the content class of b.
func (b Bitmap) Class() Class {
	if _, ok := b.Image.(*image.Alpha); ok {
		return ClassAlpha
	}
	return ClassColor
}

// Rasterizer renders glyphs. Size interpolation and hinting are the
// rasterizer's policy.
type Rasterizer interface {
	Rasterize(key Key) (Bitmap, error)
}

// RasterizerFunc adapts a function to Rasterizer.
type RasterizerFunc func(key Key) (Bitmap, error)

// Rasterize calls f(key).
func (f RasterizerFunc) Rasterize(key Key) (Bitmap, error) { return f(key) }

// AtlasFunc returns the atlas holding a content class.
type AtlasFunc func(c Class) (*atlas.Atlas, error)

// Glyph is a cached glyph. Blank glyphs have no slot.
type Glyph struct {
	Key     Key
	Class   Class
	Bearing image.Point
	Width   int
	Height  int

	atlas *atlas.Atlas
	slot  atlas.Slot
	id    atlas.OwnerID
}

// Blank reports whether the glyph draws nothing.
func (g *Glyph) Blank() bool { return g.Width == 0 || g.Height == 0 }

// Atlas returns the atlas holding the glyph, or nil for a blank glyph.
func (g *Glyph) Atlas() *atlas.Atlas { return g.atlas }

// Slot returns the atlas slot of the glyph.
func (g *Glyph) Slot() atlas.Slot { return g.slot }

// UV returns the normalized texture rectangle of the glyph.
func (g *Glyph) UV() atlas.UVRect {
	if g.atlas == nil {
		return atlas.UVRect{}
	}
	return g.atlas.UV(g.slot)
}

// Resident reports whether the glyph is still in its atlas.
func (g *Glyph) Resident() bool {
	return g.Blank() || g.slot.Valid()
}

// Stats contains glyph cache statistics.
type Stats struct {
	Len     int
	Hits    uint64
	Misses  uint64
	Evicted uint64
	Removed uint64
}

// Cache maps glyph keys to atlas slots.
//
// The atlas owns the allocations; the cache only observes them through the
// owner ID it registers at insertion. When an atlas evicts a glyph, Evicted
// drops the entry, so a later Lookup rasterizes it again. Faces that go
// away call RemoveFace.
//
// Cache is not safe for concurrent use.
type Cache struct {
	rast   Rasterizer
	atlas  AtlasFunc
	byKey  map[Key]*Glyph
	byID   map[atlas.OwnerID]*Glyph
	nextID atlas.OwnerID

	hits, misses, evicted, removed uint64
}

// New creates a glyph cache over the atlases returned by fn.
func New(r Rasterizer, fn AtlasFunc) *Cache {
	return &Cache{
		rast:  r,
		atlas: fn,
		byKey: make(map[Key]*Glyph),
		byID:  make(map[atlas.OwnerID]*Glyph),
	}
}

// Lookup returns the glyph for key, rasterizing and uploading it on a miss.
//
// A full atlas yields an error matching atlas.ErrAtlasFull; the caller
// should flush pending geometry (releasing its pins) and retry. Failed
// lookups leave nothing cached.
func (c *Cache) Lookup(key Key) (*Glyph, error) {
	if g, ok := c.byKey[key]; ok {
		c.hits++
		return g, nil
	}
	c.misses++

	bm, err := c.rast.Rasterize(key)
	if err != nil {
		return nil, fmt.Errorf("glyph: rasterize %d: %w", key.GID, err)
	}
	g := &Glyph{Key: key, Class: bm.Class(), Bearing: bm.Bearing}
	if bm.Image == nil || bm.Image.Bounds().Empty() {
		c.byKey[key] = g
		return g, nil
	}

	a, err := c.atlas(g.Class)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAtlas, g.Class)
	}
	c.nextID++
	id := c.nextID
	slot, err := a.InsertImage(bm.Image, id)
	if err != nil {
		return nil, err
	}
	r := slot.Rect()
	g.atlas, g.slot, g.id = a, slot, id
	g.Width, g.Height = r.Width, r.Height
	c.byKey[key] = g
	c.byID[id] = g

	slogger().Debug("glyph: cached",
		"face", key.Face,
		"gid", key.GID,
		"size", key.Size,
		"class", g.Class,
		"rect", r)
	return g, nil
}

// Evicted is the atlas eviction callback. It forgets the glyph registered
// under owner; unknown owners are ignored.
func (c *Cache) Evicted(owner atlas.OwnerID, _ atlas.Slot) {
	g, ok := c.byID[owner]
	if !ok {
		return
	}
	delete(c.byID, owner)
	delete(c.byKey, g.Key)
	c.evicted++
}

// Remove drops a glyph and frees its atlas region, pinned or not.
func (c *Cache) Remove(key Key) {
	g, ok := c.byKey[key]
	if !ok {
		return
	}
	c.drop(g)
}

// RemoveFace drops every glyph of face.
func (c *Cache) RemoveFace(face FaceID) int {
	n := 0
	for key, g := range c.byKey {
		if key.Face == face {
			c.drop(g)
			n++
		}
	}
	return n
}

func (c *Cache) drop(g *Glyph) {
	delete(c.byKey, g.Key)
	if g.atlas != nil {
		delete(c.byID, g.id)
		if err := g.atlas.Remove(g.slot); err != nil && !errors.Is(err, atlas.ErrAtlasClosed) {
			slogger().Warn("glyph: remove", "gid", g.Key.GID, "err", err)
		}
	}
	c.removed++
}

// Clear drops every glyph.
func (c *Cache) Clear() {
	for _, g := range c.byKey {
		c.drop(g)
	}
}

// Len returns the number of cached glyphs, blank ones included.
func (c *Cache) Len() int { return len(c.byKey) }

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Len:     len(c.byKey),
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
		Removed: c.removed,
	}
}
