// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package batch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/compositor/driver"
)

// DefaultCeiling is the default index count at which a batch flushes on its
// own.
const DefaultCeiling = 6 * 1024

// MinCeiling is the smallest accepted ceiling, enough for one quad.
const MinCeiling = 6

// maxVertices is the number of vertices addressable by 16-bit indices.
const maxVertices = math.MaxUint16 + 1

// ErrFanTooShort is returned for a triangle fan with fewer than three points.
var ErrFanTooShort = errors.New("batch: triangle fan needs at least 3 vertices")

// Vertex is one corner of a primitive in device coordinates. U and V are
// texture coordinates for operands read through the vertex (atlas glyphs);
// Color is premultiplied RGBA.
type Vertex struct {
	X, Y  float32
	U, V  float32
	Color [4]uint8
}

// FlushReason tells why a batch was submitted.
type FlushReason uint8

// Flush reasons.
const (
	ReasonExplicit FlushReason = iota
	ReasonSetupChange
	ReasonCeiling
)

// String returns the reason name.
func (r FlushReason) String() string {
	switch r {
	case ReasonExplicit:
		return "explicit"
	case ReasonSetupChange:
		return "setup-change"
	case ReasonCeiling:
		return "ceiling"
	default:
		return fmt.Sprintf("FlushReason(%d)", r)
	}
}

// FlushFunc submits one batch. The call's slices are only valid for the
// duration of the function. The batch is cleared whether or not it returns
// an error.
type FlushFunc[S comparable] func(setup S, call *driver.DrawCall, reason FlushReason) error

// Stats contains accumulator statistics.
type Stats struct {
	// Flushes counts submitted batches by reason.
	Flushes [3]uint64
	// Failed is the number of flushes whose FlushFunc returned an error.
	Failed uint64
	// Vertices and Indices are the totals submitted.
	Vertices uint64
	Indices  uint64
	// Deduped counts vertices merged into the previous vertex slot.
	Deduped uint64
	// Discarded counts batches dropped without drawing.
	Discarded uint64
}

// TotalFlushes returns the number of submitted batches.
func (s Stats) TotalFlushes() uint64 {
	return s.Flushes[ReasonExplicit] + s.Flushes[ReasonSetupChange] + s.Flushes[ReasonCeiling]
}

// Accumulator collects geometry for a single composition setup S and hands
// it to a FlushFunc as one indexed draw.
//
// A batch never mixes setups: Begin with a different setup submits what is
// pending first. A batch also never exceeds the index ceiling: a primitive
// that would cross it submits the pending geometry under the same setup and
// starts a new batch.
//
// Accumulator is not safe for concurrent use.
type Accumulator[S comparable] struct {
	ceiling int
	flush   FlushFunc[S]

	setup S
	verts []Vertex
	index []uint16

	packed []byte
	stats  Stats
}

// New returns an empty accumulator. A ceiling outside [MinCeiling, 65535] is
// clamped; zero selects DefaultCeiling.
func New[S comparable](ceiling int, flush FlushFunc[S]) *Accumulator[S] {
	switch {
	case ceiling == 0:
		ceiling = DefaultCeiling
	case ceiling < MinCeiling:
		ceiling = MinCeiling
	case ceiling > math.MaxUint16:
		ceiling = math.MaxUint16
	}
	return &Accumulator[S]{ceiling: ceiling, flush: flush}
}

// Ceiling returns the index ceiling.
func (a *Accumulator[S]) Ceiling() int { return a.ceiling }

// Setup returns the current setup.
func (a *Accumulator[S]) Setup() S { return a.setup }

// Empty reports whether no geometry is pending.
func (a *Accumulator[S]) Empty() bool { return len(a.index) == 0 }

// Pending returns the number of pending vertices and indices.
func (a *Accumulator[S]) Pending() (vertices, indices int) {
	return len(a.verts), len(a.index)
}

// Stats returns accumulator statistics.
func (a *Accumulator[S]) Stats() Stats { return a.stats }

// Begin makes setup current. When it differs from the current setup and
// geometry is pending, the pending batch is flushed first. The setup is
// switched even if that flush fails.
func (a *Accumulator[S]) Begin(setup S) error {
	var err error
	if setup != a.setup && !a.Empty() {
		err = a.submit(ReasonSetupChange)
	}
	a.setup = setup
	return err
}

// Flush submits the pending batch. Flushing an empty batch does nothing.
func (a *Accumulator[S]) Flush() error {
	return a.submit(ReasonExplicit)
}

// Discard drops the pending batch without drawing it.
func (a *Accumulator[S]) Discard() {
	if !a.Empty() {
		a.stats.Discarded++
	}
	a.clear()
}

func (a *Accumulator[S]) clear() {
	a.verts = a.verts[:0]
	a.index = a.index[:0]
}

func (a *Accumulator[S]) submit(reason FlushReason) error {
	if a.Empty() {
		a.clear()
		return nil
	}
	a.packed = Pack(a.packed[:0], a.verts)
	call := driver.DrawCall{Vertices: a.packed, Indices: a.index}

	a.stats.Flushes[reason]++
	a.stats.Vertices += uint64(len(a.verts))
	a.stats.Indices += uint64(len(a.index))

	err := a.flush(a.setup, &call, reason)
	a.clear()
	if err != nil {
		a.stats.Failed++
		return err
	}
	return nil
}

// reserve makes room for a primitive of nv vertices and ni indices.
func (a *Accumulator[S]) reserve(nv, ni int) error {
	if len(a.index)+ni <= a.ceiling && len(a.verts)+nv <= maxVertices {
		return nil
	}
	return a.submit(ReasonCeiling)
}

// push appends v, or reuses the previous slot when v repeats it exactly.
func (a *Accumulator[S]) push(v Vertex) {
	if n := len(a.verts); n > 0 && a.verts[n-1] == v {
		a.index = append(a.index, uint16(n-1))
		a.stats.Deduped++
		return
	}
	a.index = append(a.index, uint16(len(a.verts)))
	a.verts = append(a.verts, v)
}

// AddTriangle appends one triangle.
func (a *Accumulator[S]) AddTriangle(v0, v1, v2 Vertex) error {
	if err := a.reserve(3, 3); err != nil {
		return err
	}
	a.push(v0)
	a.push(v1)
	a.push(v2)
	return nil
}

// AddQuad appends a quadrilateral given in winding order as two triangles
// sharing the v0-v2 diagonal.
func (a *Accumulator[S]) AddQuad(v0, v1, v2, v3 Vertex) error {
	if err := a.reserve(4, 6); err != nil {
		return err
	}
	a.push(v0)
	a.push(v1)
	a.push(v2)
	i0, i2 := a.index[len(a.index)-3], a.index[len(a.index)-1]
	a.index = append(a.index, i0, i2)
	a.push(v3)
	return nil
}

// AddTriangles appends a triangle list. len(list) must be a multiple of
// three; trailing vertices are ignored.
func (a *Accumulator[S]) AddTriangles(list []Vertex) error {
	for i := 0; i+3 <= len(list); i += 3 {
		if err := a.AddTriangle(list[i], list[i+1], list[i+2]); err != nil {
			return err
		}
	}
	return nil
}

// AddTriangleFan appends a fan around fan[0]. A fan longer than the ceiling
// allows is split across batches.
func (a *Accumulator[S]) AddTriangleFan(fan []Vertex) error {
	if len(fan) < 3 {
		return ErrFanTooShort
	}
	if err := a.reserve(3, 3); err != nil {
		return err
	}
	a.push(fan[0])
	a.push(fan[1])
	center := a.index[len(a.index)-2]
	prev := a.index[len(a.index)-1]
	a.index = a.index[:len(a.index)-2]

	for i := 2; i < len(fan); i++ {
		if len(a.index)+3 > a.ceiling || len(a.verts)+1 > maxVertices {
			if err := a.submit(ReasonCeiling); err != nil {
				return err
			}
			a.push(fan[0])
			center = a.index[len(a.index)-1]
			a.push(fan[i-1])
			prev = a.index[len(a.index)-1]
			a.index = a.index[:len(a.index)-2]
		}
		a.index = append(a.index, center, prev)
		a.push(fan[i])
		prev = a.index[len(a.index)-1]
	}
	return nil
}

// Pack appends the little-endian device encoding of verts to dst: two
// float32 for position, two float32 for the texture coordinate and four
// color bytes.
func Pack(dst []byte, verts []Vertex) []byte {
	for _, v := range verts {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.X))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Y))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.U))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.V))
		dst = append(dst, v.Color[:]...)
	}
	return dst
}

// Unpack decodes vertices produced by Pack.
func Unpack(data []byte) []Vertex {
	verts := make([]Vertex, 0, len(data)/driver.VertexStride)
	for len(data) >= driver.VertexStride {
		f := func(off int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		}
		v := Vertex{X: f(0), Y: f(4), U: f(8), V: f(12)}
		copy(v.Color[:], data[16:20])
		verts = append(verts, v)
		data = data[driver.VertexStride:]
	}
	return verts
}
