package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// NoData is the power reported for every bin until the averager has seen a
// full window.
const NoData spectrum.Power = -100

// Averager is a moving sum over the last groupSize power vectors.
type Averager struct {
	groupSize int
	size      int

	window [][]float64 // oldest first
	sum    []float64
	frames int
}

func NewAverager(size, groupSize int) (*Averager, error) {
	if size <= 0 || groupSize <= 0 {
		return nil, fmt.Errorf("invalid averager parameters: size=%d, groupSize=%d", size, groupSize)
	}

	a := Averager{
		groupSize: groupSize,
		size:      size,
		window:    make([][]float64, groupSize),
		sum:       make([]float64, size),
	}
	for i := range a.window {
		a.window[i] = make([]float64, size)
	}

	return &a, nil
}

// Push evicts the oldest vector from the sum and adds powers. Vectors longer
// than the averager are truncated, shorter ones are zero padded.
func (a *Averager) Push(powers []spectrum.Power) {
	oldest := a.window[0]
	floats.Sub(a.sum, oldest)

	clear(oldest)
	for i := 0; i < min(len(powers), a.size); i++ {
		oldest[i] = float64(powers[i])
	}
	floats.Add(a.sum, oldest)

	copy(a.window, a.window[1:])
	a.window[a.groupSize-1] = oldest

	a.frames = min(a.frames+1, a.groupSize)
}

// Ready reports whether a full window has been pushed.
func (a *Averager) Ready() bool {
	return a.frames >= a.groupSize
}

// Average returns the per-bin mean of the window, or a vector of NoData until
// the window is full.
func (a *Averager) Average() []spectrum.Power {
	average := make([]spectrum.Power, a.size)
	if !a.Ready() {
		for i := range average {
			average[i] = NoData
		}
		return average
	}

	scaled := floats.ScaleTo(make([]float64, a.size), 1/float64(a.groupSize), a.sum)
	for i, v := range scaled {
		average[i] = spectrum.Power(v)
	}
	return average
}

// Data returns a copy of the pushed vectors in the window, oldest first.
func (a *Averager) Data() [][]spectrum.Power {
	data := make([][]spectrum.Power, 0, a.frames)
	for _, buffer := range a.window[a.groupSize-a.frames:] {
		powers := make([]spectrum.Power, a.size)
		for i, v := range buffer {
			powers[i] = spectrum.Power(v)
		}
		data = append(data, powers)
	}
	return data
}

// Reset zeroes the sum and the window without reallocating.
func (a *Averager) Reset() {
	clear(a.sum)
	for _, buffer := range a.window {
		clear(buffer)
	}
	a.frames = 0
}

// Size returns the vector length the averager was created for.
func (a *Averager) Size() int {
	return a.size
}
