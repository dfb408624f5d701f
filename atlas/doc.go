// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package atlas packs small images into large device textures.
//
// An [Atlas] owns one texture and an R-tree rectangle packer. Each
// allocation is a [Slot] recorded with the [OwnerID] of the data it caches.
// When the atlas is full, Insert evicts a randomly chosen unpinned
// allocation large enough for the request, tells its owner through the
// configured [EvictFunc], and packs into the freed space.
//
// Geometry that samples a slot and has not been drawn yet pins it with
// [Atlas.Lock]; pinned slots are never evicted. [Atlas.Remove] is the
// owner's path: it frees a slot regardless of pins when the data behind it
// is destroyed.
//
// Typical use keeps one alpha atlas (R8Unorm) and one color atlas
// (RGBA8Unorm) for glyphs, chosen by content class, plus an image atlas:
//
//	a, err := atlas.New(drv, atlas.Config{
//	    Label:   "glyphs-alpha",
//	    Format:  gputypes.TextureFormatR8Unorm,
//	    OnEvict: func(owner atlas.OwnerID, _ atlas.Slot) { forget(owner) },
//	})
//	slot, err := a.InsertImage(mask, atlas.OwnerID(key))
//	if errors.Is(err, driver.ErrUnsupported) {
//	    // flush pending geometry to drop pins, then retry
//	}
package atlas
