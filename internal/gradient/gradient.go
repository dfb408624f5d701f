// Package gradient caches gradient color ramps as one-row device textures.
//
// Ramps are content addressed: the sorted stop sequence is the cache key,
// hashed for bucketing and compared stop by stop for equality, so two
// gradients with the same stops share one texture however they were built.
package gradient

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/cache"
	"github.com/gogpu/gputypes"
)

// Gradient cache errors.
var (
	// ErrNoStops is returned for an empty stop sequence.
	ErrNoStops = errors.New("gradient: no color stops")

	// ErrInvalidStop is returned for stops with a non-finite offset or
	// color component.
	ErrInvalidStop = errors.New("gradient: invalid color stop")
)

// Ramp width limits in texels.
const (
	// MinWidth is the narrowest ramp.
	MinWidth = 8

	// DefaultMaxWidth clamps ramps that would otherwise need more texels,
	// including hard color steps.
	DefaultMaxWidth = 1024

	// DefaultCapacity is the default cache bound in texels.
	DefaultCapacity = 64 * DefaultMaxWidth

	// bandingScale is the number of texels a full-range color change needs
	// across the whole ramp to stay below the banding threshold.
	bandingScale = 128
)

// Stop is one color stop. Color is straight (not premultiplied) sRGB with
// components in [0,1].
type Stop struct {
	Offset float64
	Color  gputypes.Color
}

// key is the content address of a stop sequence.
type key struct {
	hash  uint64
	stops []Stop
}

func (k key) Hash() uint64 { return k.hash }

func (k key) Equal(other key) bool {
	return slices.Equal(k.stops, other.stops)
}

func newKey(stops []Stop) key {
	h := cache.NewHasher()
	h.Uint32(uint32(len(stops))) //nolint:gosec // stop counts are small
	for _, s := range stops {
		h.Float64(s.Offset)
		h.Float64(s.Color.R)
		h.Float64(s.Color.G)
		h.Float64(s.Color.B)
		h.Float64(s.Color.A)
	}
	return key{hash: h.Sum(), stops: stops}
}

// Ramp is a cached gradient ramp texture. It is immutable; the cache owns
// it and callers hold it between GetOrCreate and Release.
type Ramp struct {
	entry *cache.Entry[key, *Ramp]
	tex   driver.TextureID
	width int
}

// Texture returns the ramp texture, Width() x 1 texels of premultiplied
// RGBA8.
func (r *Ramp) Texture() driver.TextureID { return r.tex }

// Width returns the ramp width in texels.
func (r *Ramp) Width() int { return r.width }

// Stops returns a copy of the stop sequence the ramp was built from.
func (r *Ramp) Stops() []Stop { return slices.Clone(r.entry.Key().stops) }

// Hash returns the content hash of the stop sequence.
func (r *Ramp) Hash() uint64 { return r.entry.Key().hash }

// Refs returns the number of outstanding references.
func (r *Ramp) Refs() int { return r.entry.Refs() }

// Evicted reports whether the ramp texture has been deleted.
func (r *Ramp) Evicted() bool { return r.entry.Evicted() }

// Cache is the gradient ramp cache of one device.
//
// Cache is not safe for concurrent use.
type Cache struct {
	drv      driver.Driver
	entries  *cache.Cache[key, *Ramp]
	maxWidth int
}

// NewCache creates a ramp cache bounded by capacity texels. Ramps are at
// most maxWidth texels wide; maxWidth is also limited by the device's
// maximum texture size.
func NewCache(drv driver.Driver, capacity, maxWidth int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if limit := drv.Capabilities().MaxTextureSize; limit > 0 && maxWidth > limit {
		maxWidth = limit
	}
	maxWidth = max(maxWidth, MinWidth)

	c := &Cache{drv: drv, maxWidth: maxWidth}
	c.entries = cache.New(capacity, func(_ key, r *Ramp) {
		slogger().Debug("gradient: ramp destroyed", "width", r.width, "texture", r.tex)
		drv.DeleteTexture(r.tex)
	})
	return c
}

// GetOrCreate returns the ramp for stops with one more reference. Stops are
// sorted by offset (stably) before lookup; the caller's slice is not
// retained or modified.
//
// On a miss the ramp is rendered and uploaded once. Texture creation
// failures are returned and leave no entry behind.
func (c *Cache) GetOrCreate(stops []Stop) (*Ramp, error) {
	if len(stops) == 0 {
		return nil, ErrNoStops
	}
	for i, s := range stops {
		if !finite(s.Offset) || !finite(s.Color.R) || !finite(s.Color.G) ||
			!finite(s.Color.B) || !finite(s.Color.A) {
			return nil, fmt.Errorf("%w: stop %d", ErrInvalidStop, i)
		}
	}

	owned := slices.Clone(stops)
	slices.SortStableFunc(owned, func(a, b Stop) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})
	k := newKey(owned)

	if e, ok := c.entries.Lookup(k); ok {
		c.entries.Acquire(e)
		return e.Value(), nil
	}

	width := SampleWidth(owned, c.maxWidth)
	tex, err := c.drv.CreateTexture(driver.TextureDesc{
		Label:  "gradient-ramp",
		Width:  width,
		Height: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		return nil, fmt.Errorf("gradient: create %d texel ramp: %w", width, err)
	}
	c.drv.WriteTexture(tex, driver.Rect{Width: width, Height: 1}, Render(owned, width), width*4)
	c.drv.SetSampler(tex, driver.SamplerState{Filter: driver.FilterLinear, Extend: driver.ExtendPad})

	r := &Ramp{tex: tex, width: width}
	r.entry = c.entries.Insert(k, r, width)
	c.entries.Acquire(r.entry)

	slogger().Debug("gradient: ramp created",
		"stops", len(owned),
		"width", width,
		"hash", k.hash)
	return r, nil
}

// Release drops one reference to r. At zero references the ramp becomes
// evictable.
func (c *Cache) Release(r *Ramp) {
	if r == nil || r.entry.Evicted() {
		return
	}
	c.entries.Release(r.entry)
}

// Len returns the number of resident ramps.
func (c *Cache) Len() int { return c.entries.Len() }

// MaxWidth returns the widest ramp the cache creates.
func (c *Cache) MaxWidth() int { return c.maxWidth }

// Stats returns cache statistics. Cost is measured in texels.
func (c *Cache) Stats() cache.Stats { return c.entries.Stats() }

// Clear deletes every ramp texture, referenced or not.
func (c *Cache) Clear() { c.entries.Clear() }

// SampleWidth returns the ramp width for stops: wide enough that no
// adjacent texels differ by more than the banding threshold in any channel,
// rounded up to a multiple of eight and clamped to [MinWidth, maxWidth].
// A hard step (two stops at one offset) always takes maxWidth.
func SampleWidth(stops []Stop, maxWidth int) int {
	width := MinWidth
	for i := 1; i < len(stops); i++ {
		dx := stops[i].Offset - stops[i-1].Offset
		if dx == 0 {
			return maxWidth
		}
		a, b := stops[i-1].Color, stops[i].Color
		delta := math.Max(
			math.Max(math.Abs(b.R-a.R), math.Abs(b.G-a.G)),
			math.Max(math.Abs(b.B-a.B), math.Abs(b.A-a.A)),
		)
		if ramp := bandingScale * delta / dx; ramp > float64(width) {
			width = int(math.Min(ramp, float64(maxWidth)))
		}
	}
	width = (width + 7) &^ 7
	return min(width, maxWidth)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
