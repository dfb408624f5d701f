// Package shader builds and caches the programs that composite a source
// operand through a mask.
//
// A [Signature] names the operand kinds, combine mode, border fades and
// filters of a draw. [Cache.Get] returns the linked program for a signature,
// generating stage sources through a [Generator] and compiling them through
// the driver on a miss. Generated programs share one uniform block layout
// ([UniformLayout]) and a fixed sampler convention: the source samples from
// unit [SourceUnit] and the mask from unit [MaskUnit].
package shader
