package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// tapsPerFactor sets the low-pass filter length relative to the decimation
// factor.
const tapsPerFactor = 8

// Decimator low-pass filters and downsamples a complex stream by an integer
// factor. Filter state is kept between calls so consecutive blocks join
// without discontinuities.
type Decimator struct {
	factor int
	taps   []float32

	history []complex64 // last len(taps)-1 input samples
	phase   int         // input samples to skip before the next output
}

// NewDecimator designs a Hamming windowed-sinc low-pass filter with its cutoff
// at the output Nyquist frequency.
func NewDecimator(factor int) (*Decimator, error) {
	if factor < 1 {
		return nil, fmt.Errorf("invalid decimation factor: %d", factor)
	}

	n := tapsPerFactor*factor + 1
	coeffs := make([]float64, n)
	cutoff := 0.5 / float64(factor)
	middle := float64(n-1) / 2
	for i := range coeffs {
		x := float64(i) - middle
		if x == 0 {
			coeffs[i] = 2 * cutoff
		} else {
			coeffs[i] = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
	}
	coeffs = window.Hamming(coeffs)

	var gain float64
	for _, c := range coeffs {
		gain += c
	}

	taps := make([]float32, n)
	for i, c := range coeffs {
		taps[i] = float32(c / gain)
	}

	return &Decimator{
		factor:  factor,
		taps:    taps,
		history: make([]complex64, n-1),
	}, nil
}

func (d *Decimator) Factor() int {
	return d.factor
}

// OutputSize returns the number of samples the next Decimate call produces
// for an input of n samples.
func (d *Decimator) OutputSize(n int) int {
	if n <= d.phase {
		return 0
	}
	return (n-d.phase-1)/d.factor + 1
}

// Decimate filters in and writes the downsampled result to out, which must hold
// at least OutputSize(len(in)) samples. It returns the number of samples
// written.
func (d *Decimator) Decimate(in, out []complex64) int {
	h := len(d.history)
	buffer := make([]complex64, h+len(in))
	copy(buffer, d.history)
	copy(buffer[h:], in)

	written := 0
	i := d.phase
	for ; i < len(in) && written < len(out); i += d.factor {
		var acc complex64
		span := buffer[i : i+len(d.taps)]
		for k, tap := range d.taps {
			acc += span[k] * complex(tap, 0)
		}
		out[written] = acc
		written++
	}
	d.phase = i - len(in)
	if d.phase < 0 {
		d.phase = 0
	}

	copy(d.history, buffer[len(buffer)-h:])

	return written
}

// HistorySize returns the number of input samples the filter of a decimator
// with the given factor needs before the first output.
func HistorySize(factor int) int {
	return tapsPerFactor * factor
}

// Seek primes the filter with the input preceding sample number first of a
// stream and aligns the outputs to multiples of the factor, so blocks of one
// stream can be decimated out of order by different decimators.
func (d *Decimator) Seek(history []complex64, first int64) {
	clear(d.history)
	n := min(len(history), len(d.history))
	copy(d.history[len(d.history)-n:], history[len(history)-n:])

	f := int64(d.factor)
	d.phase = int((f - first%f) % f)
}

// Reset clears the filter state.
func (d *Decimator) Reset() {
	clear(d.history)
	d.phase = 0
}
