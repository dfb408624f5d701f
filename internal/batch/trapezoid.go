package batch

import (
	"golang.org/x/image/math/fixed"
)

// Line is an edge of a trapezoid, extended infinitely through P1 and P2.
type Line struct {
	P1, P2 fixed.Point26_6
}

// xAt returns the x coordinate of the line at y.
func (l Line) xAt(y fixed.Int26_6) float32 {
	x1, y1 := toFloat(l.P1.X), toFloat(l.P1.Y)
	x2, y2 := toFloat(l.P2.X), toFloat(l.P2.Y)
	if y1 == y2 {
		return x1
	}
	return x1 + (toFloat(y)-y1)*(x2-x1)/(y2-y1)
}

// Trapezoid is a horizontal band between Top and Bottom bounded by two
// edges, the primitive produced by scanline tessellators.
type Trapezoid struct {
	Top, Bottom fixed.Int26_6
	Left, Right Line
}

// Empty reports whether the band has no height.
func (t Trapezoid) Empty() bool { return t.Bottom <= t.Top }

// Corners returns the four corners in winding order: top-left, top-right,
// bottom-right, bottom-left.
func (t Trapezoid) Corners() [4][2]float32 {
	top, bottom := toFloat(t.Top), toFloat(t.Bottom)
	return [4][2]float32{
		{t.Left.xAt(t.Top), top},
		{t.Right.xAt(t.Top), top},
		{t.Right.xAt(t.Bottom), bottom},
		{t.Left.xAt(t.Bottom), bottom},
	}
}

func toFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}

// AddTrapezoid appends t as a quad of the given color. Empty trapezoids are
// skipped. A trapezoid that narrows to a point at one end produces two
// equal consecutive corners, which share a vertex slot.
func (a *Accumulator[S]) AddTrapezoid(t Trapezoid, color [4]uint8) error {
	if t.Empty() {
		return nil
	}
	c := t.Corners()
	var v [4]Vertex
	for i := range c {
		v[i] = Vertex{X: c[i][0], Y: c[i][1], Color: color}
	}
	return a.AddQuad(v[0], v[1], v[2], v[3])
}

// AddTrapezoids appends every trapezoid of traps.
func (a *Accumulator[S]) AddTrapezoids(traps []Trapezoid, color [4]uint8) error {
	for _, t := range traps {
		if err := a.AddTrapezoid(t, color); err != nil {
			return err
		}
	}
	return nil
}
