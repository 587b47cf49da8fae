package dsp

import (
	"math"
	"math/cmplx"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// ShiftData returns a phase rotation table that moves a signal by offset Hz
// when multiplied element-wise with samples taken at sampleRate.
func ShiftData(offset, sampleRate spectrum.Frequency, size int) []complex64 {
	table := make([]complex64, size)
	inc := 2 * math.Pi * float64(offset) / float64(sampleRate)
	for i := range table {
		s, c := math.Sincos(inc * float64(i))
		table[i] = complex(float32(c), float32(s))
	}
	return table
}

// Shift multiplies samples by the rotation table in place.
func Shift(samples, table []complex64) {
	for i := range samples[:min(len(samples), len(table))] {
		samples[i] *= table[i]
	}
}

// Shifter frequency shifts blocks of a stream while keeping the phase
// continuous between them. The rotation table is regenerated only when a
// longer block arrives.
type Shifter struct {
	offset     spectrum.Frequency
	sampleRate spectrum.Frequency

	table    []complex64
	position int64 // index of the next sample of the stream
}

func NewShifter(offset, sampleRate spectrum.Frequency) *Shifter {
	return &Shifter{offset: offset, sampleRate: sampleRate}
}

func (s *Shifter) Offset() spectrum.Frequency {
	return s.offset
}

// TableSize returns the current rotation table length.
func (s *Shifter) TableSize() int {
	return len(s.table)
}

// Shift rotates the next block of the stream in place.
func (s *Shifter) Shift(samples []complex64) {
	s.ShiftAt(samples, s.position)
	s.position += int64(len(samples))
}

// ShiftAt rotates samples in place, where samples[0] is sample number first of
// the stream. It does not move the stream position, so blocks can be shifted
// out of order.
func (s *Shifter) ShiftAt(samples []complex64, first int64) {
	if s.offset == 0 || len(samples) == 0 {
		return
	}

	if len(s.table) < len(samples) {
		s.table = ShiftData(s.offset, s.sampleRate, len(samples))
	}

	// whole cycles are dropped in integer math to keep the phase exact
	rate := int64(s.sampleRate)
	cycles := (int64(s.offset) % rate) * (first % rate) % rate
	start := complex64(cmplx.Exp(complex(0, 2*math.Pi*float64(cycles)/float64(rate))))

	for i := range samples {
		samples[i] *= s.table[i] * start
	}
}

// Reset restarts the stream at sample zero.
func (s *Shifter) Reset() {
	s.position = 0
}
