package compositor

import (
	"math"
	"testing"
)

func TestMatrixApply(t *testing.T) {
	const epsilon = 1e-12

	tests := []struct {
		name         string
		m            Matrix
		x, y         float64
		wantX, wantY float64
	}{
		{"identity", Identity(), 3, 4, 3, 4},
		{"translate", Translate(10, -2), 3, 4, 13, 2},
		{"scale", Scale(2, 0.5), 3, 4, 6, 2},
		{"rotate 90deg", Rotate(math.Pi / 2), 1, 0, 0, 1},
		{"scale after translate", Scale(2, 2).Multiply(Translate(1, 1)), 1, 1, 4, 4},
		{"texture matrix origin", TextureMatrix(10, 20, 100, 50), 10, 20, 0, 0},
		{"texture matrix corner", TextureMatrix(10, 20, 100, 50), 110, 70, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := tt.m.Apply(tt.x, tt.y)
			if math.Abs(x-tt.wantX) > epsilon || math.Abs(y-tt.wantY) > epsilon {
				t.Errorf("Apply(%v, %v) = (%v, %v), want (%v, %v)", tt.x, tt.y, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestMatrixInvert(t *testing.T) {
	m := Translate(5, 7).Multiply(Scale(2, 4))
	inv, ok := m.Invert()
	if !ok {
		t.Fatal("Invert reported a regular matrix singular")
	}
	x, y := inv.Apply(m.Apply(3, -1))
	if math.Abs(x-3) > 1e-12 || math.Abs(y+1) > 1e-12 {
		t.Errorf("round trip = (%v, %v), want (3, -1)", x, y)
	}

	if _, ok := Scale(0, 1).Invert(); ok {
		t.Error("Invert accepted a singular matrix")
	}
}

func TestMatrixMat3ColumnMajor(t *testing.T) {
	m := Matrix{A: 1, B: 2, C: 3, D: 4, E: 5, F: 6}
	want := [9]float32{1, 4, 0, 2, 5, 0, 3, 6, 1}
	if got := m.mat3(); got != want {
		t.Errorf("mat3() = %v, want %v", got, want)
	}
	if !Identity().IsIdentity() || Translate(1, 0).IsIdentity() {
		t.Error("IsIdentity misreports")
	}
}
