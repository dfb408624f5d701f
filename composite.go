package compositor

import (
	"fmt"

	"github.com/gogpu/compositor/driver"
	"github.com/gogpu/compositor/internal/batch"
	"github.com/gogpu/compositor/internal/shader"
	"github.com/gogpu/gputypes"
)

// Vertex is one vertex of batched geometry: device position, texture
// coordinate for atlas operands, and a per-vertex color whose alpha scales
// coverage.
type Vertex = batch.Vertex

// Trapezoid is a horizontal band between two edges, in 26.6 fixed point, as
// produced by a path tessellator.
type Trapezoid = batch.Trapezoid

// Line is a trapezoid edge.
type Line = batch.Line

// FlushReason says why a batch was drawn.
type FlushReason = batch.FlushReason

// Flush reasons.
const (
	ReasonExplicit    = batch.ReasonExplicit
	ReasonSetupChange = batch.ReasonSetupChange
	ReasonCeiling     = batch.ReasonCeiling
)

// composite is the composition state selected by the caller.
type composite struct {
	dst     Surface
	src     resolved
	mask    resolved
	op      Operator
	clip    driver.Rect
	clipped bool

	// err is why the current operator cannot draw through the current
	// mask, if it cannot.
	err error
}

// setup is the composition setup of one batch. Equal setups draw with the
// same program, textures and state.
type setup struct {
	fb      driver.FramebufferID
	width   int
	height  int
	flipped bool
	src     operandState
	mask    operandState
	op      Operator
	clip    driver.Rect
	clipped bool
}

// signature returns the program signature of s drawn with combine c.
func (s setup) signature(c Combine) Signature {
	return Signature{
		Source:           s.src.kind,
		Mask:             s.mask.kind,
		Combine:          c,
		SourceBorderFade: s.src.fade,
		MaskBorderFade:   s.mask.fade,
		SourceFilter:     s.src.filter,
		MaskFilter:       s.mask.filter,
	}
}

func (d *Device) currentSetup() setup {
	s := setup{
		src:     d.comp.src.st,
		mask:    d.comp.mask.st,
		op:      d.comp.op,
		clip:    d.comp.clip,
		clipped: d.comp.clipped,
	}
	if dst := d.comp.dst; dst != nil {
		s.fb = dst.Framebuffer()
		s.width, s.height = dst.Size()
		s.flipped = dst.Flipped()
	}
	return s
}

// begin makes the selected composition the setup of the batch, drawing the
// pending geometry first if the setup changed.
func (d *Device) begin() error {
	_, d.comp.err = d.comp.op.passes(d.comp.mask.st.ca)
	if d.comp.err == nil {
		d.comp.err = sharedSampler(d.comp.src.st, d.comp.mask.st)
	}
	return d.acc.Begin(d.currentSetup())
}

// sharedSampler reports a source and mask that sample one texture in two
// ways. Sampler state belongs to the texture, so only one of them could be
// honored by the draw.
func sharedSampler(src, mask operandState) error {
	if !src.kind.Samples() || !mask.kind.Samples() {
		return nil
	}
	if src.tex != mask.tex || src.sampler == mask.sampler {
		return nil
	}
	return fmt.Errorf("%w: compositor: source and mask sample texture %d with %+v and %+v",
		ErrUnsupported, src.tex, src.sampler, mask.sampler)
}

// SetDestination selects the surface geometry is composited onto. A surface
// naming another native target is made current, after pending geometry has
// been drawn. Calling it again after a WindowSurface was resized picks up
// the new size.
func (d *Device) SetDestination(s Surface) error {
	if err := d.ready(); err != nil {
		return err
	}
	var err error
	if s != nil {
		if t := s.Target(); !t.IsZero() && (!d.targetValid || t != d.target) {
			err = d.acc.Flush()
			if mcErr := d.makeCurrent(t); mcErr != nil {
				return fold(err, mcErr)
			}
		}
	}
	d.comp.dst = s
	if berr := d.begin(); berr != nil {
		err = fold(err, berr)
	}
	return err
}

// Destination returns the selected surface.
func (d *Device) Destination() Surface { return d.comp.dst }

// SetSource selects the source operand.
func (d *Device) SetSource(o Operand) error {
	return d.setOperand(&d.comp.src, o, false)
}

// SetMask selects the mask operand. None means full coverage.
func (d *Device) SetMask(o Operand) error {
	return d.setOperand(&d.comp.mask, o, true)
}

// setOperand resolves o into slot. A gradient ramp the old operand held is
// released only after geometry drawn with it has been flushed.
func (d *Device) setOperand(slot *resolved, o Operand, mask bool) error {
	if err := d.ready(); err != nil {
		return err
	}
	r, err := d.resolve(o, mask)
	if err != nil {
		return err
	}
	old := *slot
	*slot = r
	err = d.begin()
	d.release(old)
	return err
}

// SetOperator selects the compositing operator. Operators without a blend
// mapping report ErrUnsupported and leave the operator unchanged.
func (d *Device) SetOperator(op Operator) error {
	if err := d.ready(); err != nil {
		return err
	}
	if _, err := op.Blend(); err != nil {
		return err
	}
	d.comp.op = op
	return d.begin()
}

// Operator returns the selected operator.
func (d *Device) Operator() Operator { return d.comp.op }

// SetClip restricts drawing to r, in destination pixels with y down.
func (d *Device) SetClip(r driver.Rect) error {
	if err := d.ready(); err != nil {
		return err
	}
	d.comp.clip, d.comp.clipped = r, true
	return d.begin()
}

// ResetClip removes the clip rectangle.
func (d *Device) ResetClip() error {
	if err := d.ready(); err != nil {
		return err
	}
	d.comp.clip, d.comp.clipped = driver.Rect{}, false
	return d.begin()
}

// drawable reports whether geometry can be added now.
func (d *Device) drawable() error {
	if err := d.ready(); err != nil {
		return err
	}
	if d.comp.dst == nil {
		return ErrNoDestination
	}
	return d.comp.err
}

// AddTriangle adds one triangle to the batch.
func (d *Device) AddTriangle(v0, v1, v2 Vertex) error {
	if err := d.drawable(); err != nil {
		return err
	}
	return d.acc.AddTriangle(v0, v1, v2)
}

// AddQuad adds the quad v0 v1 v2 v3, given in winding order, as two
// triangles.
func (d *Device) AddQuad(v0, v1, v2, v3 Vertex) error {
	if err := d.drawable(); err != nil {
		return err
	}
	return d.acc.AddQuad(v0, v1, v2, v3)
}

// AddTriangles adds a triangle list; len(list) must be a multiple of 3.
func (d *Device) AddTriangles(list []Vertex) error {
	if err := d.drawable(); err != nil {
		return err
	}
	return d.acc.AddTriangles(list)
}

// AddTriangleFan adds a fan around fan[0]. Fans crossing the index ceiling
// are split across batches.
func (d *Device) AddTriangleFan(fan []Vertex) error {
	if err := d.drawable(); err != nil {
		return err
	}
	return d.acc.AddTriangleFan(fan)
}

// AddTrapezoids adds tessellated trapezoids with a uniform vertex color.
func (d *Device) AddTrapezoids(traps []Trapezoid, color [4]uint8) error {
	if err := d.drawable(); err != nil {
		return err
	}
	return d.acc.AddTrapezoids(traps, color)
}

// AddRect adds an axis-aligned rectangle with a uniform vertex color.
// Texture coordinates span the unit square.
func (d *Device) AddRect(x, y, w, h float32, color [4]uint8) error {
	return d.AddQuad(
		Vertex{X: x, Y: y, U: 0, V: 0, Color: color},
		Vertex{X: x + w, Y: y, U: 1, V: 0, Color: color},
		Vertex{X: x + w, Y: y + h, U: 1, V: 1, Color: color},
		Vertex{X: x, Y: y + h, U: 0, V: 1, Color: color},
	)
}

// Flush draws the pending geometry. The batch is empty afterwards, whether
// the draw succeeded or not.
func (d *Device) Flush() error {
	if err := d.ready(); err != nil {
		return err
	}
	return d.acc.Flush()
}

// Discard drops the pending geometry without drawing it.
func (d *Device) Discard() error {
	if err := d.ready(); err != nil {
		return err
	}
	d.acc.Discard()
	d.unpinAll()
	return nil
}

// Clear fills the destination, inside the clip if one is set, with c.
// Pending geometry is drawn first.
func (d *Device) Clear(c gputypes.Color) error {
	if err := d.ready(); err != nil {
		return err
	}
	if d.comp.dst == nil {
		return ErrNoDestination
	}
	err := d.acc.Flush()
	d.bindTarget(d.currentSetup())
	d.ClearColor(gputypes.Color{R: c.R * c.A, G: c.G * c.A, B: c.B * c.A, A: c.A})
	d.drv.Clear()
	return err
}

// viewport returns the scale and offset mapping device pixels to clip
// space. Window framebuffers have row 0 at the bottom.
func (s setup) viewport() [4]float32 {
	w, h := float32(s.width), float32(s.height)
	if s.flipped {
		return [4]float32{2 / w, -2 / h, -1, 1}
	}
	return [4]float32{2 / w, 2 / h, -1, -1}
}

// bindTarget applies the framebuffer, viewport and clip of s.
func (d *Device) bindTarget(s setup) {
	d.BindFramebuffer(s.fb)
	d.SetViewport(driver.Rect{Width: s.width, Height: s.height})
	if !s.clipped {
		d.DisableScissor()
		return
	}
	r := s.clip
	if s.flipped {
		r.Y = s.height - r.Y - r.Height
	}
	d.SetScissor(r)
	d.EnableScissor()
}

// bindOperand binds the texture of st on unit.
func (d *Device) bindOperand(unit int, st operandState) {
	if !st.kind.Samples() {
		return
	}
	d.BindTexture(unit, st.tex)
	d.setSampler(st.tex, st.sampler)
}

// uniformNames are the uniforms of one operand role.
type uniformNames struct {
	constant, texdims, a, circleD, radius0, matrix string
}

var (
	sourceUniforms = uniformNames{
		constant: shader.UniformSourceConstant,
		texdims:  shader.UniformSourceTexdims,
		a:        shader.UniformSourceA,
		circleD:  shader.UniformSourceCircleD,
		radius0:  shader.UniformSourceRadius0,
		matrix:   shader.UniformSourceMatrix,
	}
	maskUniforms = uniformNames{
		constant: shader.UniformMaskConstant,
		texdims:  shader.UniformMaskTexdims,
		a:        shader.UniformMaskA,
		circleD:  shader.UniformMaskCircleD,
		radius0:  shader.UniformMaskRadius0,
		matrix:   shader.UniformMaskMatrix,
	}
)

func setOperandUniforms(p *shader.Program, st operandState, n uniformNames) {
	switch {
	case st.kind == OperandNone:
	case st.kind == OperandConstant:
		p.SetVec4(n.constant, st.color[0], st.color[1], st.color[2], st.color[3])
	default:
		p.SetVec4(n.texdims, st.texdims[0], st.texdims[1], st.texdims[2], st.texdims[3])
		if !st.kind.VertexCoords() {
			p.SetMatrix3(n.matrix, st.matrix)
		}
		if st.kind >= OperandRadialGradientA0 {
			p.SetVec4(n.circleD, st.circleD[0], st.circleD[1], st.circleD[2], st.circleD[3])
			p.SetFloat(n.radius0, st.radius0)
			p.SetFloat(n.a, st.a)
		}
	}
}

// draw is the flush callback of the batch: it binds the resolved program,
// textures and state of s and issues the draw. Component-alpha composites
// take two passes. Pins taken for the batch are released in every case.
func (d *Device) draw(s setup, call *driver.DrawCall, reason batch.FlushReason) error {
	defer d.unpinAll()

	passes, err := s.op.passes(s.mask.ca)
	if err != nil {
		return err
	}
	if err := sharedSampler(s.src, s.mask); err != nil {
		return err
	}
	var progs [2]*shader.Program
	defer func() {
		for _, p := range progs {
			d.programs.Release(p)
		}
	}()
	for i, ps := range passes {
		p, err := d.programs.Get(s.signature(ps.combine))
		if err != nil {
			return err
		}
		d.programs.Acquire(p)
		progs[i] = p
	}

	d.bindTarget(s)
	d.bindOperand(shader.SourceUnit, s.src)
	d.bindOperand(shader.MaskUnit, s.mask)

	vp := s.viewport()
	for i, ps := range passes {
		p := progs[i]
		d.programs.Use(p)
		p.SetVec4(shader.UniformViewport, vp[0], vp[1], vp[2], vp[3])
		setOperandUniforms(p, s.src, sourceUniforms)
		setOperandUniforms(p, s.mask, maskUniforms)
		d.SetBlend(ps.blend)
		d.drv.DrawIndexed(call)
		d.counters.draws++
	}

	Logger().Debug("compositor: flush",
		"reason", reason,
		"vertices", call.VertexCount(),
		"indices", len(call.Indices),
		"passes", len(passes),
		"pins", len(d.pins))
	return nil
}
