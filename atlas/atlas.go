package atlas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/gputypes"
)

// Atlas-related errors.
var (
	// ErrAtlasFull is returned when nothing free or evictable can hold the
	// requested region. Flushing pending geometry releases pins and may make
	// room.
	ErrAtlasFull = fmt.Errorf("atlas: texture atlas is full: %w", driver.ErrUnsupported)

	// ErrTooLarge is returned for regions larger than the atlas itself.
	ErrTooLarge = fmt.Errorf("atlas: region larger than atlas: %w", driver.ErrUnsupported)

	// ErrAtlasClosed is returned when operating on a closed atlas.
	ErrAtlasClosed = errors.New("atlas: texture atlas is closed")

	// ErrStaleSlot is returned for a slot whose allocation was removed or
	// evicted.
	ErrStaleSlot = errors.New("atlas: slot is no longer resident")

	// ErrNotPinned is returned by Unlock for a slot with no pins.
	ErrNotPinned = errors.New("atlas: slot is not pinned")
)

// Default atlas settings.
const (
	// DefaultAtlasSize is the default atlas dimension (2048x2048).
	DefaultAtlasSize = 2048

	// MinAtlasSize is the minimum atlas dimension (64x64).
	MinAtlasSize = 64

	// DefaultMinSize is the smallest remainder the packer splits off.
	DefaultMinSize = 4
)

// OwnerID identifies the data holder of an allocation. The atlas never
// dereferences it; it is handed back on eviction so the owner can forget
// its cached copy.
type OwnerID uint64

// EvictFunc is notified once for every allocation discarded to make room.
// It must not call back into the atlas.
type EvictFunc func(owner OwnerID, slot Slot)

// Slot is a handle to one packed rectangle. The zero Slot is invalid.
//
// A Slot stays valid until its allocation is removed or evicted; after that
// every method reports the slot as stale, even if the same area has been
// reallocated to someone else.
type Slot struct {
	n      *node
	serial uint64
}

// Valid reports whether the slot still names a resident allocation.
func (s Slot) Valid() bool {
	return s.n != nil && s.n.state == nodeOccupied && s.n.serial == s.serial
}

// Rect returns the requested rectangle in texels, or an empty rectangle for
// a stale slot.
func (s Slot) Rect() driver.Rect {
	if !s.Valid() {
		return driver.Rect{}
	}
	return driver.Rect{X: s.n.x, Y: s.n.y, Width: s.n.usedW, Height: s.n.usedH}
}

// Owner returns the owner recorded at insertion.
func (s Slot) Owner() OwnerID {
	if !s.Valid() {
		return 0
	}
	return s.n.owner
}

// Pins returns the current pin count.
func (s Slot) Pins() int {
	if !s.Valid() {
		return 0
	}
	return s.n.pins
}

// UVRect is a rectangle in normalized texture coordinates.
type UVRect struct {
	U0, V0, U1, V1 float32
}

// Config configures an atlas.
type Config struct {
	// Label is the debug label of the backing texture.
	Label string

	// Width and Height are the backing texture size. Zero selects
	// DefaultAtlasSize.
	Width  int
	Height int

	// Format is R8Unorm for alpha content or RGBA8Unorm for color content.
	// Zero selects RGBA8Unorm.
	Format gputypes.TextureFormat

	// MinSize is the smallest remainder the packer splits off. Zero selects
	// DefaultMinSize.
	MinSize int

	// Seed seeds the eviction choice.
	Seed uint64

	// OnEvict is notified of evicted allocations.
	OnEvict EvictFunc
}

func (c *Config) defaults() {
	if c.Width == 0 {
		c.Width = DefaultAtlasSize
	}
	if c.Height == 0 {
		c.Height = DefaultAtlasSize
	}
	c.Width = max(c.Width, MinAtlasSize)
	c.Height = max(c.Height, MinAtlasSize)
	if c.Format == gputypes.TextureFormatUndefined {
		c.Format = gputypes.TextureFormatRGBA8Unorm
	}
	if c.MinSize <= 0 {
		c.MinSize = DefaultMinSize
	}
}

// Stats contains atlas statistics.
type Stats struct {
	// Resident is the number of live allocations.
	Resident int
	// Pinned is the number of allocations with a non-zero pin count.
	Pinned int
	// Insertions is the number of successful inserts.
	Insertions uint64
	// Evictions is the number of allocations discarded to make room.
	Evictions uint64
	// Unsupported is the number of inserts that found no room.
	Unsupported uint64
	// Utilization is the occupied fraction of the atlas area.
	Utilization float64
}

// Atlas packs many small images into one device texture.
//
// Atlas is not safe for concurrent use. The owning device serializes
// access.
type Atlas struct {
	drv    driver.Driver
	cfg    Config
	tex    driver.TextureID
	tree   *tree
	closed bool

	pinned      int
	insertions  uint64
	evictions   uint64
	unsupported uint64
}

// New creates an atlas and its backing texture.
func New(drv driver.Driver, cfg Config) (*Atlas, error) {
	cfg.defaults()

	tex, err := drv.CreateTexture(driver.TextureDesc{
		Label:  cfg.Label,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: cfg.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("atlas: create %dx%d texture: %w", cfg.Width, cfg.Height, err)
	}
	drv.SetSampler(tex, driver.SamplerState{Filter: driver.FilterNearest, Extend: driver.ExtendPad})

	a := &Atlas{
		drv: drv,
		cfg: cfg,
		tex: tex,
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	a.tree = newTree(cfg.Width, cfg.Height, cfg.MinSize, rng, a.onEvicted)

	slogger().Debug("atlas: created",
		"label", cfg.Label,
		"width", cfg.Width,
		"height", cfg.Height,
		"format", cfg.Format)
	return a, nil
}

func (a *Atlas) onEvicted(n *node) {
	a.evictions++
	if a.cfg.OnEvict != nil {
		a.cfg.OnEvict(n.owner, Slot{n: n, serial: n.serial})
	}
}

// Insert allocates a width x height region for owner.
//
// When the atlas is full a randomly chosen unpinned allocation that can
// hold the region is evicted and the pack is retried once. ErrAtlasFull
// (which matches driver.ErrUnsupported) is returned when nothing unpinned
// is large enough.
func (a *Atlas) Insert(width, height int, owner OwnerID) (Slot, error) {
	if a.closed {
		return Slot{}, ErrAtlasClosed
	}
	if width <= 0 || height <= 0 {
		return Slot{}, fmt.Errorf("atlas: invalid region %dx%d", width, height)
	}
	if width > a.cfg.Width || height > a.cfg.Height {
		a.unsupported++
		return Slot{}, ErrTooLarge
	}

	n := a.tree.pack(width, height)
	if n == nil {
		if free := a.tree.evictRandom(width, height); free != nil {
			n = a.tree.insertAt(free, width, height)
		}
	}
	if n == nil {
		a.unsupported++
		slogger().Debug("atlas: full",
			"label", a.cfg.Label,
			"width", width,
			"height", height,
			"pinned", a.pinned)
		return Slot{}, ErrAtlasFull
	}

	n.owner = owner
	a.insertions++
	return Slot{n: n, serial: n.serial}, nil
}

func (a *Atlas) check(s Slot) error {
	if a.closed {
		return ErrAtlasClosed
	}
	if !s.Valid() {
		return ErrStaleSlot
	}
	return nil
}

// Lock pins s so it cannot be evicted. Pins are counted; each Lock needs a
// matching Unlock.
func (a *Atlas) Lock(s Slot) error {
	if err := a.check(s); err != nil {
		return err
	}
	if s.n.pins == 0 {
		a.pinned++
	}
	a.tree.pin(s.n)
	return nil
}

// Unlock drops one pin from s. At zero pins the allocation becomes
// evictable again.
func (a *Atlas) Unlock(s Slot) error {
	if err := a.check(s); err != nil {
		return err
	}
	if !a.tree.unpin(s.n) {
		return ErrNotPinned
	}
	if s.n.pins == 0 {
		a.pinned--
	}
	return nil
}

// Remove frees s regardless of its pin count. The eviction callback does not
// run: the owner is the one removing it.
func (a *Atlas) Remove(s Slot) error {
	if err := a.check(s); err != nil {
		return err
	}
	if s.n.pins > 0 {
		a.pinned--
	}
	a.tree.remove(s.n)
	return nil
}

// Upload writes pixel rows into the region of s. stride is the byte
// distance between rows of data.
func (a *Atlas) Upload(s Slot, data []byte, stride int) error {
	if err := a.check(s); err != nil {
		return err
	}
	r := s.Rect()
	bpp := driver.BytesPerTexel(a.cfg.Format)
	if stride < r.Width*bpp || len(data) < (r.Height-1)*stride+r.Width*bpp {
		return fmt.Errorf("atlas: upload of %d bytes (stride %d) too small for %v", len(data), stride, r)
	}
	a.drv.WriteTexture(a.tex, r, data, stride)
	return nil
}

// InsertImage allocates a region the size of img and uploads it. Images are
// converted to the texture format of the atlas: alpha atlases keep the
// alpha channel, color atlases store premultiplied RGBA.
func (a *Atlas) InsertImage(img image.Image, owner OwnerID) (Slot, error) {
	b := img.Bounds()
	s, err := a.Insert(b.Dx(), b.Dy(), owner)
	if err != nil {
		return Slot{}, err
	}
	data, stride := a.pixels(img)
	if err := a.Upload(s, data, stride); err != nil {
		_ = a.Remove(s)
		return Slot{}, err
	}
	return s, nil
}

func (a *Atlas) pixels(img image.Image) ([]byte, int) {
	b := img.Bounds()
	if a.cfg.Format == gputypes.TextureFormatR8Unorm {
		if m, ok := img.(*image.Alpha); ok {
			return m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride
		}
		data := make([]byte, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.AlphaModel.Convert(img.At(x, y)).(color.Alpha)
				data[(y-b.Min.Y)*b.Dx()+(x-b.Min.X)] = c.A
			}
		}
		return data, b.Dx()
	}

	if m, ok := img.(*image.RGBA); ok {
		return m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride
	}
	stride := b.Dx() * 4
	data := make([]byte, stride*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			off := (y-b.Min.Y)*stride + (x-b.Min.X)*4
			data[off+0] = c.R
			data[off+1] = c.G
			data[off+2] = c.B
			data[off+3] = c.A
		}
	}
	return data, stride
}

// UV returns the normalized texture coordinates of s.
func (a *Atlas) UV(s Slot) UVRect {
	r := s.Rect()
	w := float32(a.cfg.Width)
	h := float32(a.cfg.Height)
	return UVRect{
		U0: float32(r.X) / w,
		V0: float32(r.Y) / h,
		U1: float32(r.X+r.Width) / w,
		V1: float32(r.Y+r.Height) / h,
	}
}

// Texture returns the backing texture.
func (a *Atlas) Texture() driver.TextureID {
	return a.tex
}

// Format returns the texel format of the backing texture.
func (a *Atlas) Format() gputypes.TextureFormat {
	return a.cfg.Format
}

// Width returns the atlas width in texels.
func (a *Atlas) Width() int {
	return a.cfg.Width
}

// Height returns the atlas height in texels.
func (a *Atlas) Height() int {
	return a.cfg.Height
}

// Utilization returns the occupied fraction of the atlas area.
func (a *Atlas) Utilization() float64 {
	return float64(a.tree.usedArea()) / float64(a.cfg.Width*a.cfg.Height)
}

// Stats returns atlas statistics.
func (a *Atlas) Stats() Stats {
	return Stats{
		Resident:    len(a.tree.leaves),
		Pinned:      a.pinned,
		Insertions:  a.insertions,
		Evictions:   a.evictions,
		Unsupported: a.unsupported,
		Utilization: a.Utilization(),
	}
}

// Reset evicts every allocation, notifying owners, pinned or not.
func (a *Atlas) Reset() {
	if a.closed {
		return
	}
	a.tree.evictAll()
	a.pinned = 0
}

// Close evicts everything and deletes the backing texture. Close is
// idempotent.
func (a *Atlas) Close() {
	if a.closed {
		return
	}
	a.Reset()
	a.drv.DeleteTexture(a.tex)
	a.tex = driver.InvalidID
	a.closed = true
}

// IsClosed reports whether the atlas has been closed.
func (a *Atlas) IsClosed() bool {
	return a.closed
}
