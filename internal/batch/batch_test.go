package batch

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/compositor/driver"
	"golang.org/x/image/math/fixed"
)

type recorded struct {
	setup  string
	verts  []Vertex
	index  []uint16
	reason FlushReason
}

type recorder struct {
	calls []recorded
	err   error
}

func (r *recorder) flush(setup string, call *driver.DrawCall, reason FlushReason) error {
	r.calls = append(r.calls, recorded{
		setup:  setup,
		verts:  Unpack(call.Vertices),
		index:  slices.Clone(call.Indices),
		reason: reason,
	})
	return r.err
}

func vert(x, y float32) Vertex {
	return Vertex{X: x, Y: y, Color: [4]uint8{255, 255, 255, 255}}
}

// quadAt returns a unit quad with no vertex shared with quads at other
// positions.
func quadAt(i int) [4]Vertex {
	x := float32(i * 2)
	return [4]Vertex{vert(x, 0), vert(x+1, 0), vert(x+1, 1), vert(x, 1)}
}

func TestNewClampsCeiling(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultCeiling},
		{1, MinCeiling},
		{600, 600},
		{1 << 20, 65535},
	}
	for _, tt := range tests {
		if got := New[string](tt.in, nil).Ceiling(); got != tt.want {
			t.Errorf("New(%d).Ceiling() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDedupConsecutiveVertices(t *testing.T) {
	rec := &recorder{}
	acc := New(0, rec.flush)
	a, b, c, d := vert(0, 0), vert(1, 0), vert(1, 1), vert(0, 1)

	if err := acc.AddTriangles([]Vertex{a, a, b, b, c, d}); err != nil {
		t.Fatal(err)
	}
	if err := acc.Flush(); err != nil {
		t.Fatal(err)
	}

	got := rec.calls[0]
	if len(got.verts) != 4 {
		t.Errorf("vertices = %d, want 4", len(got.verts))
	}
	if want := []uint16{0, 0, 1, 1, 2, 3}; !slices.Equal(got.index, want) {
		t.Errorf("indices = %v, want %v", got.index, want)
	}
	if acc.Stats().Deduped != 2 {
		t.Errorf("Deduped = %d, want 2", acc.Stats().Deduped)
	}
}

func TestNoRepeatsMapOneToOne(t *testing.T) {
	rec := &recorder{}
	acc := New(0, rec.flush)
	var list []Vertex
	for i := range 9 {
		list = append(list, vert(float32(i), float32(i%2)))
	}
	if err := acc.AddTriangles(list); err != nil {
		t.Fatal(err)
	}
	acc.Flush()

	got := rec.calls[0]
	if len(got.verts) != len(got.index) {
		t.Fatalf("%d vertices for %d indices", len(got.verts), len(got.index))
	}
	for i, idx := range got.index {
		if int(idx) != i {
			t.Fatalf("index %d = %d", i, idx)
		}
		if got.verts[i] != list[i] {
			t.Fatalf("vertex %d = %+v, want %+v", i, got.verts[i], list[i])
		}
	}
}

func TestAddQuadIndices(t *testing.T) {
	rec := &recorder{}
	acc := New(0, rec.flush)
	q := quadAt(0)
	acc.AddQuad(q[0], q[1], q[2], q[3])
	acc.Flush()

	if want := []uint16{0, 1, 2, 0, 2, 3}; !slices.Equal(rec.calls[0].index, want) {
		t.Errorf("indices = %v, want %v", rec.calls[0].index, want)
	}
	if len(rec.calls[0].verts) != 4 {
		t.Errorf("vertices = %d, want 4", len(rec.calls[0].verts))
	}
}

func TestSetupChangeProducesOneDrawPerSetup(t *testing.T) {
	for _, n := range []int{1, 10, 500} {
		rec := &recorder{}
		acc := New(0, rec.flush)

		acc.Begin("A")
		for i := range n {
			q := quadAt(i)
			if err := acc.AddQuad(q[0], q[1], q[2], q[3]); err != nil {
				t.Fatal(err)
			}
			// Re-beginning the same setup is not a change.
			acc.Begin("A")
		}
		if err := acc.Begin("B"); err != nil {
			t.Fatal(err)
		}
		q := quadAt(0)
		acc.AddQuad(q[0], q[1], q[2], q[3])
		acc.Flush()

		if len(rec.calls) != 2 {
			t.Fatalf("n=%d: %d draws, want 2", n, len(rec.calls))
		}
		first, second := rec.calls[0], rec.calls[1]
		if first.setup != "A" || first.reason != ReasonSetupChange || len(first.index) != 6*n {
			t.Errorf("n=%d: first draw %s/%v with %d indices", n, first.setup, first.reason, len(first.index))
		}
		if second.setup != "B" || second.reason != ReasonExplicit || len(second.index) != 6 {
			t.Errorf("n=%d: second draw %s/%v with %d indices", n, second.setup, second.reason, len(second.index))
		}
	}
}

func TestBeginOnEmptyBatchDoesNotFlush(t *testing.T) {
	rec := &recorder{}
	acc := New(0, rec.flush)
	acc.Begin("A")
	acc.Begin("B")
	acc.Flush()
	if len(rec.calls) != 0 {
		t.Errorf("%d draws from empty batches", len(rec.calls))
	}
	if acc.Setup() != "B" {
		t.Errorf("Setup() = %q, want B", acc.Setup())
	}
}

func TestCeilingSplitsBatches(t *testing.T) {
	const ceiling = 60
	rec := &recorder{}
	acc := New(ceiling, rec.flush)
	acc.Begin("path")

	for i := range 100 {
		q := quadAt(i)
		if err := acc.AddQuad(q[0], q[1], q[2], q[3]); err != nil {
			t.Fatal(err)
		}
	}
	acc.Flush()

	if len(rec.calls) <= 1 {
		t.Fatalf("%d draws, want more than one", len(rec.calls))
	}
	total := 0
	for i, c := range rec.calls {
		if len(c.index) > ceiling {
			t.Errorf("draw %d has %d indices, ceiling %d", i, len(c.index), ceiling)
		}
		if c.setup != "path" {
			t.Errorf("draw %d setup = %q", i, c.setup)
		}
		for _, idx := range c.index {
			if int(idx) >= len(c.verts) {
				t.Fatalf("draw %d index %d out of %d vertices", i, idx, len(c.verts))
			}
		}
		total += len(c.index)
	}
	if total != 600 {
		t.Errorf("total indices = %d, want 600", total)
	}
	st := acc.Stats()
	if st.Flushes[ReasonCeiling] != 9 || st.Flushes[ReasonExplicit] != 1 {
		t.Errorf("Flushes = %v, want 9 ceiling and 1 explicit", st.Flushes)
	}
}

func TestFlushErrorClearsBatch(t *testing.T) {
	errDraw := errors.New("draw failed")
	rec := &recorder{err: errDraw}
	acc := New(0, rec.flush)
	q := quadAt(0)
	acc.AddQuad(q[0], q[1], q[2], q[3])

	if err := acc.Flush(); !errors.Is(err, errDraw) {
		t.Fatalf("Flush = %v, want %v", err, errDraw)
	}
	if !acc.Empty() {
		t.Fatal("batch not cleared after a failed flush")
	}
	rec.err = nil
	if err := acc.Flush(); err != nil || len(rec.calls) != 1 {
		t.Errorf("failed batch submitted again: err=%v draws=%d", err, len(rec.calls))
	}
	if acc.Stats().Failed != 1 {
		t.Errorf("Failed = %d, want 1", acc.Stats().Failed)
	}
}

func TestBeginSwitchesSetupWhenFlushFails(t *testing.T) {
	errDraw := errors.New("draw failed")
	rec := &recorder{err: errDraw}
	acc := New(0, rec.flush)
	acc.Begin("A")
	acc.AddTriangle(vert(0, 0), vert(1, 0), vert(0, 1))

	if err := acc.Begin("B"); !errors.Is(err, errDraw) {
		t.Fatalf("Begin = %v", err)
	}
	if acc.Setup() != "B" || !acc.Empty() {
		t.Error("failed setup-change flush left the old batch")
	}
}

func TestDiscard(t *testing.T) {
	rec := &recorder{}
	acc := New(0, rec.flush)
	acc.AddTriangle(vert(0, 0), vert(1, 0), vert(0, 1))
	acc.Discard()
	acc.Flush()
	if len(rec.calls) != 0 {
		t.Error("discarded geometry was drawn")
	}
	if acc.Stats().Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", acc.Stats().Discarded)
	}
}

func TestTriangleFanSplitsAtCeiling(t *testing.T) {
	rec := &recorder{}
	acc := New(12, rec.flush)
	var fan []Vertex
	for i := range 10 {
		fan = append(fan, vert(float32(i), float32(i*i)))
	}
	if err := acc.AddTriangleFan(fan); err != nil {
		t.Fatal(err)
	}
	acc.Flush()

	if len(rec.calls) != 2 {
		t.Fatalf("%d draws, want 2", len(rec.calls))
	}
	if rec.calls[0].reason != ReasonCeiling {
		t.Errorf("first reason = %v, want ceiling", rec.calls[0].reason)
	}

	var tris [][3]Vertex
	for _, c := range rec.calls {
		if len(c.index) > 12 {
			t.Errorf("draw has %d indices", len(c.index))
		}
		for i := 0; i+3 <= len(c.index); i += 3 {
			tris = append(tris, [3]Vertex{c.verts[c.index[i]], c.verts[c.index[i+1]], c.verts[c.index[i+2]]})
		}
	}
	if len(tris) != len(fan)-2 {
		t.Fatalf("%d triangles, want %d", len(tris), len(fan)-2)
	}
	for i, tri := range tris {
		want := [3]Vertex{fan[0], fan[i+1], fan[i+2]}
		if tri != want {
			t.Errorf("triangle %d = %v, want %v", i, tri, want)
		}
	}
}

func TestTriangleFanTooShort(t *testing.T) {
	acc := New(0, (&recorder{}).flush)
	if err := acc.AddTriangleFan([]Vertex{vert(0, 0), vert(1, 1)}); !errors.Is(err, ErrFanTooShort) {
		t.Errorf("AddTriangleFan = %v, want ErrFanTooShort", err)
	}
}

func TestAddTrapezoid(t *testing.T) {
	tests := []struct {
		name      string
		trap      Trapezoid
		wantVerts []Vertex
		wantIndex []uint16
	}{
		{
			name: "slanted",
			trap: Trapezoid{
				Top: fixed.I(0), Bottom: fixed.I(10),
				Left:  Line{fixed.P(0, 0), fixed.P(0, 10)},
				Right: Line{fixed.P(10, 0), fixed.P(20, 10)},
			},
			wantVerts: []Vertex{vert(0, 0), vert(10, 0), vert(20, 10), vert(0, 10)},
			wantIndex: []uint16{0, 1, 2, 0, 2, 3},
		},
		{
			name: "apex",
			trap: Trapezoid{
				Top: fixed.I(0), Bottom: fixed.I(10),
				Left:  Line{fixed.P(5, 0), fixed.P(0, 10)},
				Right: Line{fixed.P(5, 0), fixed.P(10, 10)},
			},
			wantVerts: []Vertex{vert(5, 0), vert(10, 10), vert(0, 10)},
			wantIndex: []uint16{0, 0, 1, 0, 1, 2},
		},
		{
			name: "subpixel band",
			trap: Trapezoid{
				Top: fixed.Int26_6(32), Bottom: fixed.I(1),
				Left:  Line{fixed.P(0, 0), fixed.P(0, 1)},
				Right: Line{fixed.P(2, 0), fixed.P(2, 1)},
			},
			wantVerts: []Vertex{vert(0, 0.5), vert(2, 0.5), vert(2, 1), vert(0, 1)},
			wantIndex: []uint16{0, 1, 2, 0, 2, 3},
		},
	}
	white := [4]uint8{255, 255, 255, 255}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			acc := New(0, rec.flush)
			if err := acc.AddTrapezoid(tt.trap, white); err != nil {
				t.Fatal(err)
			}
			acc.Flush()
			got := rec.calls[0]
			if !slices.Equal(got.verts, tt.wantVerts) {
				t.Errorf("vertices = %v, want %v", got.verts, tt.wantVerts)
			}
			if !slices.Equal(got.index, tt.wantIndex) {
				t.Errorf("indices = %v, want %v", got.index, tt.wantIndex)
			}
		})
	}
}

func TestEmptyTrapezoidSkipped(t *testing.T) {
	acc := New(0, (&recorder{}).flush)
	acc.AddTrapezoids([]Trapezoid{{Top: fixed.I(4), Bottom: fixed.I(4)}}, [4]uint8{})
	if !acc.Empty() {
		t.Error("zero-height trapezoid added geometry")
	}
}

func TestPackLayout(t *testing.T) {
	v := Vertex{X: 1, Y: 2, U: 0.5, V: 0.25, Color: [4]uint8{1, 2, 3, 4}}
	b := Pack(nil, []Vertex{v, v})
	if len(b) != 2*driver.VertexStride {
		t.Fatalf("packed %d bytes, want %d", len(b), 2*driver.VertexStride)
	}
	// 1.0f little-endian
	if !slices.Equal(b[0:4], []byte{0, 0, 0x80, 0x3f}) {
		t.Errorf("x bytes = %v", b[0:4])
	}
	if !slices.Equal(b[16:20], []byte{1, 2, 3, 4}) {
		t.Errorf("color bytes = %v", b[16:20])
	}
	if got := Unpack(b); len(got) != 2 || got[1] != v {
		t.Errorf("Unpack = %v", got)
	}
}

func BenchmarkAddQuad(b *testing.B) {
	acc := New(0, func(string, *driver.DrawCall, FlushReason) error { return nil })
	q := quadAt(0)
	b.ReportAllocs()
	for b.Loop() {
		acc.AddQuad(q[0], q[1], q[2], q[3])
	}
}
