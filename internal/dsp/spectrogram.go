package dsp

import (
	"fmt"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// minPower floors the linear power so empty bins do not produce -Inf.
const minPower = 1e-20

type plan struct {
	fft    *fourier.CmplxFFT
	window []float64
	scale  float64 // 1 / (fftSize * sum(window^2))

	segment []complex128
	coeffs  []complex128
	power   []float64
}

// Spectrogram computes Welch power spectral density estimates. It caches one
// FFT plan per size and is not safe for concurrent use.
type Spectrogram struct {
	plans map[int]*plan
}

func NewSpectrogram() *Spectrogram {
	return &Spectrogram{plans: make(map[int]*plan)}
}

// FFTSize returns the power of two FFT length used for r.
func FFTSize(r spectrum.FrequencyRange) int {
	n := r.FFTSize()
	if n <= 1 {
		return 2
	}
	return 1 << bits.Len(uint(n-1))
}

func (s *Spectrogram) plan(n int) *plan {
	if p, ok := s.plans[n]; ok {
		return p
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	w = window.Hann(w)

	var energy float64
	for _, v := range w {
		energy += v * v
	}

	p := &plan{
		fft:     fourier.NewCmplxFFT(n),
		window:  w,
		scale:   1 / (float64(n) * energy),
		segment: make([]complex128, n),
		coeffs:  make([]complex128, n),
		power:   make([]float64, n),
	}
	s.plans[n] = p
	return p
}

// PSD averages the periodograms of consecutive non-overlapping segments of
// samples and returns one signal per bin in ascending frequency order, with
// bin frequencies centered on r.
func (s *Spectrogram) PSD(r spectrum.FrequencyRange, samples []complex64) ([]spectrum.Signal, error) {
	n := FFTSize(r)
	segments := len(samples) / n
	if segments == 0 {
		return nil, fmt.Errorf("not enough samples for FFT size %d: %d given", n, len(samples))
	}

	p := s.plan(n)
	clear(p.power)

	for seg := 0; seg < segments; seg++ {
		offset := seg * n
		for i := 0; i < n; i++ {
			v := samples[offset+i]
			p.segment[i] = complex(float64(real(v))*p.window[i], float64(imag(v))*p.window[i])
		}

		p.fft.Coefficients(p.coeffs, p.segment)

		for i, c := range p.coeffs {
			p.power[i] += real(c)*real(c) + imag(c)*imag(c)
		}
	}

	step := r.SampleRate / spectrum.Frequency(n)
	first := r.Center() - r.SampleRate/2

	signals := make([]spectrum.Signal, n)
	for i := range signals {
		// move DC to the middle of the spectrum
		k := (i + n/2) % n
		power := max(p.power[k]*p.scale/float64(segments), minPower)

		signals[i] = spectrum.Signal{
			Frequency: first + spectrum.Frequency(i)*step,
			Power:     spectrum.Power(10 * math.Log10(power)),
		}
	}

	return signals, nil
}
