// Package glyph caches rasterized glyphs in texture atlases.
//
// Glyphs are keyed by face, glyph ID, size and subpixel position. A
// [Rasterizer] supplied by the text layer renders misses; alpha-only
// results go to one atlas and color results to another. The atlases own
// the allocations: the cache registers each glyph under an owner ID and
// forgets it when the atlas reports the eviction, never keeping an
// allocation alive on its own.
//
// [Outlines] is a Rasterizer for TrueType and OpenType outlines:
//
//	r := glyph.NewOutlines()
//	if err := r.ParseFace(1, ttf); err != nil {
//		return err
//	}
//	cache := glyph.New(r, atlases)
package glyph
