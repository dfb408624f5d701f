package gradient

import (
	"math"
	"sort"
)

// Render samples stops into width premultiplied RGBA8 texels. Stops must be
// sorted by offset. Texel i samples offset i/(width-1), so the end texels
// hold the end stop colors exactly; offsets outside the stop range take the
// nearest stop color.
//
// Colors are interpolated in linear light and re-encoded to sRGB before
// premultiplication.
func Render(stops []Stop, width int) []byte {
	pix := make([]byte, width*4)
	for i := 0; i < width; i++ {
		t := 0.0
		if width > 1 {
			t = float64(i) / float64(width-1)
		}
		r, g, b, a := colorAt(stops, t)
		pix[i*4+0] = toByte(r * a)
		pix[i*4+1] = toByte(g * a)
		pix[i*4+2] = toByte(b * a)
		pix[i*4+3] = toByte(a)
	}
	return pix
}

// colorAt returns the straight sRGB color at offset t.
func colorAt(stops []Stop, t float64) (r, g, b, a float64) {
	idx := sort.Search(len(stops), func(i int) bool {
		return stops[i].Offset >= t
	})
	if idx == 0 {
		c := stops[0].Color
		return clamp01(c.R), clamp01(c.G), clamp01(c.B), clamp01(c.A)
	}
	if idx >= len(stops) {
		c := stops[len(stops)-1].Color
		return clamp01(c.R), clamp01(c.G), clamp01(c.B), clamp01(c.A)
	}

	s0, s1 := stops[idx-1], stops[idx]
	if s1.Offset == s0.Offset {
		c := s1.Color
		return clamp01(c.R), clamp01(c.G), clamp01(c.B), clamp01(c.A)
	}
	u := (t - s0.Offset) / (s1.Offset - s0.Offset)

	return lerpLinear(s0.Color.R, s1.Color.R, u),
		lerpLinear(s0.Color.G, s1.Color.G, u),
		lerpLinear(s0.Color.B, s1.Color.B, u),
		clamp01(s0.Color.A + u*(s1.Color.A-s0.Color.A))
}

// lerpLinear interpolates two sRGB components in linear light.
func lerpLinear(a, b, u float64) float64 {
	la := srgbToLinear(clamp01(a))
	lb := srgbToLinear(clamp01(b))
	return linearToSRGB(la + u*(lb-la))
}

func srgbToLinear(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

func linearToSRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1.0/2.4) - 0.055
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// toByte converts [0,1] to [0,255] with rounding.
func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
