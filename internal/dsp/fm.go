package dsp

import (
	"math"
	"math/cmplx"
)

// FMDemodulator is a polar discriminator. Output is normalized to [-1, 1]
// where +-1 is a deviation of half the sample rate.
type FMDemodulator struct {
	previous complex64
}

func NewFMDemodulator() *FMDemodulator {
	return &FMDemodulator{previous: 1}
}

// Demodulate writes one audio sample per input sample into out and returns
// the number of samples written.
func (f *FMDemodulator) Demodulate(in []complex64, out []float32) int {
	n := min(len(in), len(out))
	for i := 0; i < n; i++ {
		product := complex128(in[i] * conj(f.previous))
		out[i] = float32(cmplx.Phase(product) / math.Pi)
		f.previous = in[i]
	}
	return n
}

func conj(c complex64) complex64 {
	return complex(real(c), -imag(c))
}
