package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/shader"
	"github.com/gogpu/gputypes"
)

// spirvWords converts little-endian SPIR-V bytes to words.
func spirvWords(b []byte) ([]uint32, error) {
	if len(b) < 4 || len(b)%4 != 0 {
		return nil, errors.New("wgpu: malformed SPIR-V output")
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.New("wgpu: SPIR-V magic number mismatch")
	}
	return words, nil
}

const spirvMagic = 0x07230203

// samplerLocation is the first location past the uniform block. Sampler
// uniforms map to texture units instead of block bytes.
var samplerLocation = driver.UniformLocation(len(shader.UniformLayout))

// location returns the uniform location of name, or NoUniform when the
// block declares no such member.
func location(name string) driver.UniformLocation {
	switch name {
	case shader.UniformSourceSampler:
		return samplerLocation
	case shader.UniformMaskSampler:
		return samplerLocation + 1
	}
	for i, s := range shader.UniformLayout {
		if s.Name == name {
			return driver.UniformLocation(i)
		}
	}
	return driver.NoUniform
}

// block is the CPU shadow of a program's uniform buffer.
type block [shader.UniformBlockSize]byte

// put writes floats at the slot of loc. mat3 values are written as three
// 16-byte columns.
func (b *block) put(loc driver.UniformLocation, v ...float32) bool {
	if loc < 0 || int(loc) >= len(shader.UniformLayout) {
		return false
	}
	s := shader.UniformLayout[loc]
	if len(v) == 9 {
		for col := range 3 {
			for row := range 3 {
				off := s.Offset + col*16 + row*4
				binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v[col*3+row]))
			}
		}
		return true
	}
	for i, f := range v {
		if i*4 >= s.Size {
			break
		}
		binary.LittleEndian.PutUint32(b[s.Offset+i*4:], math.Float32bits(f))
	}
	return true
}

// flipViewport negates the y scale and offset of the viewport uniform.
//
// Offscreen targets keep row 0 at the bottom of clip space, as a GL
// texture-backed framebuffer does, so sampling them back with v = 0 at the
// top reads what was drawn at device row 0.
func (b *block) flipViewport() {
	s, _ := shader.LookupSlot(shader.UniformViewport)
	for _, i := range []int{1, 3} {
		off := s.Offset + i*4
		f := math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(-f))
	}
}

// topLeft converts a bottom-left origin rectangle of a height-tall default
// framebuffer to the top-left origin used by render passes. The result is
// clamped to the framebuffer.
func topLeft(r driver.Rect, width, height int) driver.Rect {
	return clampRect(driver.Rect{X: r.X, Y: height - r.Y - r.Height, Width: r.Width, Height: r.Height}, width, height)
}

func clampRect(r driver.Rect, width, height int) driver.Rect {
	x0, y0 := max(r.X, 0), max(r.Y, 0)
	x1, y1 := min(r.X+r.Width, width), min(r.Y+r.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return driver.Rect{}
	}
	return driver.Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// indexBytes packs indices, padded to the 4-byte buffer size alignment.
func indexBytes(idx []uint16) []byte {
	n := len(idx) * 2
	b := make([]byte, (n+3)&^3)
	for i, v := range idx {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

// pad4 returns data extended with zeros to a multiple of 4 bytes.
func pad4(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	b := make([]byte, (len(data)+3)&^3)
	copy(b, data)
	return b
}

// pipelineKey identifies a render pipeline variant of a program.
type pipelineKey struct {
	blend  bool
	state  gputypes.BlendState
	format gputypes.TextureFormat
}

// usage returns the texture usage flags for desc.
func usage(desc driver.TextureDesc) gputypes.TextureUsage {
	u := gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst
	if desc.RenderTarget {
		u |= gputypes.TextureUsageRenderAttachment
	}
	return u
}

// uploadSize returns the bytes of data covering a w x h region of rows
// stride bytes apart, or -1 for an invalid region.
func uploadSize(w, h, bpp, stride int) int {
	if w <= 0 || h <= 0 || stride < w*bpp {
		return -1
	}
	return stride*(h-1) + w*bpp
}

// completer reports the last submission the GPU finished.
type completer interface {
	PollCompleted() uint64
}

// waitPoll is the interval between completion polls.
const waitPoll = 50 * time.Microsecond

// waitSubmission blocks until q has completed submission idx or timeout
// elapses.
func waitSubmission(q completer, idx uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for q.PollCompleted() < idx {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("wgpu: submission %d not complete after %v", idx, timeout)
		}
		time.Sleep(waitPoll)
	}
	return nil
}
