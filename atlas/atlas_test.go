package atlas

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/driver/drivertest"
	"github.com/gogpu/gputypes"
)

func newTestAtlas(t *testing.T, cfg Config) (*Atlas, *drivertest.Driver) {
	t.Helper()
	drv := drivertest.New()
	a, err := New(drv, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, drv
}

func TestNewCreatesTexture(t *testing.T) {
	a, drv := newTestAtlas(t, Config{Label: "test", Width: 128, Height: 256, Format: gputypes.TextureFormatR8Unorm})

	tex, ok := drv.Textures[a.Texture()]
	if !ok {
		t.Fatal("backing texture not created")
	}
	if tex.Desc.Width != 128 || tex.Desc.Height != 256 || tex.Desc.Format != gputypes.TextureFormatR8Unorm {
		t.Errorf("texture desc = %+v", tex.Desc)
	}

	a.Close()
	if _, ok := drv.Textures[a.Texture()]; ok || drv.Live() != 0 {
		t.Error("Close leaked the backing texture")
	}
	if _, err := a.Insert(1, 1, 1); !errors.Is(err, ErrAtlasClosed) {
		t.Errorf("Insert after Close = %v, want ErrAtlasClosed", err)
	}
}

func TestNewTextureFailure(t *testing.T) {
	drv := drivertest.New()
	drv.TextureHook = func(driver.TextureDesc) error { return drivertest.ErrInjected }
	if _, err := New(drv, Config{}); !errors.Is(err, drivertest.ErrInjected) {
		t.Errorf("New = %v, want injected error", err)
	}
}

func TestInsertImageUploads(t *testing.T) {
	a, drv := newTestAtlas(t, Config{Width: 64, Height: 64, Format: gputypes.TextureFormatR8Unorm})

	mask := image.NewAlpha(image.Rect(0, 0, 3, 2))
	for i := range mask.Pix {
		mask.Pix[i] = uint8(10 * (i + 1))
	}
	s, err := a.InsertImage(mask, 42)
	if err != nil {
		t.Fatalf("InsertImage: %v", err)
	}
	if s.Owner() != 42 {
		t.Errorf("Owner = %d, want 42", s.Owner())
	}

	r := s.Rect()
	tex := drv.Textures[a.Texture()]
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			got := tex.Data[(r.Y+y)*64+r.X+x]
			if want := mask.Pix[y*mask.Stride+x]; got != want {
				t.Errorf("texel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestInsertImageConvertsToRGBA(t *testing.T) {
	a, drv := newTestAtlas(t, Config{Width: 64, Height: 64})

	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 128})
	s, err := a.InsertImage(img, 1)
	if err != nil {
		t.Fatalf("InsertImage: %v", err)
	}

	r := s.Rect()
	off := (r.Y*64 + r.X) * 4
	px := drv.Textures[a.Texture()].Data[off : off+4]
	want := color.RGBAModel.Convert(color.NRGBA{R: 255, A: 128}).(color.RGBA)
	if px[0] != want.R || px[3] != want.A {
		t.Errorf("pixel = %v, want premultiplied %v", px, want)
	}
}

func TestUV(t *testing.T) {
	a, _ := newTestAtlas(t, Config{Width: 100, Height: 200})
	s, err := a.Insert(50, 50, 1)
	if err != nil {
		t.Fatal(err)
	}
	uv := a.UV(s)
	if uv.U0 != 0 || uv.V0 != 0 || uv.U1 != 0.5 || uv.V1 != 0.25 {
		t.Errorf("UV = %+v, want {0 0 0.5 0.25}", uv)
	}
}

func TestInsertRejectsOversize(t *testing.T) {
	a, _ := newTestAtlas(t, Config{Width: 64, Height: 64})
	_, err := a.Insert(65, 1, 1)
	if !errors.Is(err, ErrTooLarge) || !errors.Is(err, driver.ErrUnsupported) {
		t.Errorf("Insert oversize = %v, want ErrTooLarge matching ErrUnsupported", err)
	}
	if _, err := a.Insert(0, 4, 1); err == nil {
		t.Error("Insert of empty region succeeded")
	}
}

// fillPinned inserts 16x16 regions into a 64x64 atlas, pinning each, until
// the atlas reports full.
func fillPinned(t *testing.T, a *Atlas) []Slot {
	t.Helper()
	var slots []Slot
	for i := 0; ; i++ {
		s, err := a.Insert(16, 16, OwnerID(i))
		if errors.Is(err, ErrAtlasFull) {
			return slots
		}
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if err := a.Lock(s); err != nil {
			t.Fatalf("Lock %d: %v", i, err)
		}
		slots = append(slots, s)
	}
}

func TestPinnedSlotsAreNeverEvicted(t *testing.T) {
	var evicted []OwnerID
	a, _ := newTestAtlas(t, Config{
		Width:   64,
		Height:  64,
		OnEvict: func(owner OwnerID, _ Slot) { evicted = append(evicted, owner) },
	})

	slots := fillPinned(t, a)
	if len(slots) != 16 {
		t.Fatalf("filled %d slots, want 16", len(slots))
	}
	if len(evicted) != 0 {
		t.Fatalf("evicted %v while everything was pinned", evicted)
	}
	_, err := a.Insert(16, 16, 100)
	if !errors.Is(err, driver.ErrUnsupported) {
		t.Fatalf("Insert into pinned atlas = %v, want ErrUnsupported", err)
	}

	// Unpinning makes exactly that slot eligible.
	old := slots[5].Rect()
	if err := a.Unlock(slots[5]); err != nil {
		t.Fatal(err)
	}
	s, err := a.Insert(16, 16, 100)
	if err != nil {
		t.Fatalf("Insert after Unlock: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != 5 {
		t.Fatalf("evicted = %v, want [5]", evicted)
	}
	if s.Rect() != old {
		t.Errorf("new slot at %v, want reuse of %v", s.Rect(), old)
	}
	if slots[5].Valid() {
		t.Error("evicted slot still reports valid")
	}
	for i, other := range slots {
		if i != 5 && !other.Valid() {
			t.Errorf("pinned slot %d invalidated", i)
		}
	}

	st := a.Stats()
	if st.Evictions != 1 || st.Unsupported != 2 || st.Pinned != 15 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestLockIsReentrant(t *testing.T) {
	a, _ := newTestAtlas(t, Config{Width: 64, Height: 64})
	s, err := a.Insert(8, 8, 1)
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		op   func(Slot) error
		pins int
		err  error
	}{
		{a.Lock, 1, nil},
		{a.Lock, 2, nil},
		{a.Unlock, 1, nil},
		{a.Unlock, 0, nil},
		{a.Unlock, 0, ErrNotPinned},
	}
	for i, step := range steps {
		if err := step.op(s); !errors.Is(err, step.err) {
			t.Fatalf("step %d: err = %v, want %v", i, err, step.err)
		}
		if s.Pins() != step.pins {
			t.Fatalf("step %d: pins = %d, want %d", i, s.Pins(), step.pins)
		}
	}
	if a.Stats().Pinned != 0 {
		t.Errorf("Pinned = %d, want 0", a.Stats().Pinned)
	}
}

func TestRemoveIgnoresPins(t *testing.T) {
	evictions := 0
	a, _ := newTestAtlas(t, Config{
		Width:   64,
		Height:  64,
		OnEvict: func(OwnerID, Slot) { evictions++ },
	})
	s, _ := a.Insert(8, 8, 1)
	_ = a.Lock(s)
	_ = a.Lock(s)

	if err := a.Remove(s); err != nil {
		t.Fatalf("Remove pinned slot: %v", err)
	}
	if s.Valid() {
		t.Error("removed slot still valid")
	}
	if evictions != 0 {
		t.Error("Remove ran the eviction callback")
	}
	if st := a.Stats(); st.Pinned != 0 || st.Resident != 0 {
		t.Errorf("Stats after Remove = %+v", st)
	}

	for name, op := range map[string]func(Slot) error{
		"Lock":   a.Lock,
		"Unlock": a.Unlock,
		"Remove": a.Remove,
	} {
		if err := op(s); !errors.Is(err, ErrStaleSlot) {
			t.Errorf("%s on removed slot = %v, want ErrStaleSlot", name, err)
		}
	}

	// The freed space collapses back into one full-size region.
	if _, err := a.Insert(64, 64, 2); err != nil {
		t.Errorf("full-size Insert after Remove: %v", err)
	}
}

func TestStaleSlotAfterReuse(t *testing.T) {
	a, _ := newTestAtlas(t, Config{Width: 64, Height: 64})
	s, _ := a.Insert(64, 64, 1)
	_ = a.Remove(s)
	s2, _ := a.Insert(64, 64, 2)

	if s.Valid() {
		t.Error("old slot valid after its area was reallocated")
	}
	if !s2.Valid() || s2.Owner() != 2 {
		t.Error("new slot not valid")
	}
}

func TestReset(t *testing.T) {
	var evicted []OwnerID
	a, _ := newTestAtlas(t, Config{
		Width:   64,
		Height:  64,
		OnEvict: func(owner OwnerID, _ Slot) { evicted = append(evicted, owner) },
	})
	slots := fillPinned(t, a)

	a.Reset()
	if len(evicted) != len(slots) {
		t.Errorf("Reset notified %d owners, want %d", len(evicted), len(slots))
	}
	if st := a.Stats(); st.Resident != 0 || st.Pinned != 0 || st.Utilization != 0 {
		t.Errorf("Stats after Reset = %+v", st)
	}
	if _, err := a.Insert(64, 64, 1); err != nil {
		t.Errorf("full-size Insert after Reset: %v", err)
	}
}

// TestGlyphChurn inserts far more 10x10 glyph cells than a 2048x2048 atlas
// holds while keeping a bounded window of recent cells pinned.
func TestGlyphChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("long atlas churn")
	}
	const (
		inserts = 60000
		window  = 64
	)

	pinned := make(map[OwnerID]bool)
	evicted := make(map[OwnerID]int)
	var bad int
	a, _ := newTestAtlas(t, Config{
		Format: gputypes.TextureFormatR8Unorm,
		OnEvict: func(owner OwnerID, s Slot) {
			evicted[owner]++
			if pinned[owner] || !s.Valid() {
				bad++
			}
		},
	})

	var live []Slot
	for i := 0; i < inserts; i++ {
		owner := OwnerID(i + 1)
		s, err := a.Insert(10, 10, owner)
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if err := a.Lock(s); err != nil {
			t.Fatalf("Lock %d: %v", i, err)
		}
		pinned[owner] = true
		live = append(live, s)

		if len(live) > window {
			oldest := live[0]
			live = live[1:]
			delete(pinned, oldest.Owner())
			if err := a.Unlock(oldest); err != nil {
				t.Fatalf("Unlock: %v", err)
			}
		}
	}

	if bad != 0 {
		t.Errorf("%d evictions hit a pinned or stale slot", bad)
	}
	st := a.Stats()
	if st.Unsupported != 0 {
		t.Errorf("Unsupported = %d, want 0", st.Unsupported)
	}
	if st.Evictions == 0 {
		t.Fatal("atlas never evicted")
	}
	for owner, n := range evicted {
		if n != 1 {
			t.Fatalf("owner %d evicted %d times", owner, n)
		}
	}
	if uint64(len(evicted)) != st.Evictions {
		t.Errorf("callbacks for %d owners, Stats reports %d evictions", len(evicted), st.Evictions)
	}
	if st.Resident+int(st.Evictions) != inserts {
		t.Errorf("resident %d + evicted %d != %d inserts", st.Resident, st.Evictions, inserts)
	}
}

func BenchmarkInsertEvict(b *testing.B) {
	a, err := New(drivertest.New(), Config{Width: 512, Height: 512, Format: gputypes.TextureFormatR8Unorm})
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.Insert(10, 10, OwnerID(i)); err != nil {
			b.Fatal(err)
		}
	}
}
