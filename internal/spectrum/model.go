package spectrum

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrInvalidRange is returned when a frequency range fails validation.
var ErrInvalidRange = errors.New("invalid frequency range")

// Frequency is a frequency or a frequency difference in Hz.
type Frequency int64

// Power is a power level in dB.
type Power float32

func (f Frequency) String() string {
	return FormatFrequency(f)
}

// FormatFrequency renders a frequency with an SI prefix, e.g. "145.500 MHz".
func FormatFrequency(f Frequency) string {
	value, prefix := humanize.ComputeSI(float64(f))
	return fmt.Sprintf("%.3f %sHz", value, prefix)
}

// Signal is a single FFT bin reading at one scan instant.
type Signal struct {
	Frequency Frequency `json:"frequency"` // Bin center frequency
	Power     Power     `json:"power"`     // Bin power in dB
}

// Range is a user-defined frequency band, e.g. a scan band or an ignored band.
type Range struct {
	Start Frequency `yaml:"start" json:"start"`
	Stop  Frequency `yaml:"stop" json:"stop"`
}

func (r Range) Validate() error {
	if r.Start <= 0 {
		return fmt.Errorf("spectrum.Range: start must be positive: %d", r.Start)
	}
	if r.Stop <= r.Start {
		return fmt.Errorf("spectrum.Range: stop must be greater than start: %d <= %d", r.Stop, r.Start)
	}
	return nil
}

// Contains reports whether f lies within the band, both ends inclusive.
func (r Range) Contains(f Frequency) bool {
	return r.Start <= f && f <= r.Stop
}

func (r Range) String() string {
	return fmt.Sprintf("%s - %s", FormatFrequency(r.Start), FormatFrequency(r.Stop))
}

// FrequencyRange describes a tuned span: its edges, the FFT bin step and the
// sample rate used to capture it.
type FrequencyRange struct {
	Start      Frequency `json:"start"`
	Stop       Frequency `json:"stop"`
	Step       Frequency `json:"step"`
	SampleRate Frequency `json:"sampleRate"`
}

func (r FrequencyRange) Center() Frequency {
	return (r.Start + r.Stop) / 2
}

func (r FrequencyRange) Bandwidth() Frequency {
	return r.SampleRate
}

// FFTSize is the number of bins needed to resolve the range at its step.
func (r FrequencyRange) FFTSize() int {
	if r.Step <= 0 {
		return 0
	}
	return int(r.Bandwidth() / r.Step)
}

// Contains reports whether f lies within the range, both ends inclusive.
func (r FrequencyRange) Contains(f Frequency) bool {
	return r.Start <= f && f <= r.Stop
}

// Overlaps reports whether the two ranges share at least one frequency.
func (r FrequencyRange) Overlaps(other FrequencyRange) bool {
	return r.Start <= other.Stop && other.Start <= r.Stop
}

func (r FrequencyRange) Validate() error {
	if r.Start >= r.Stop {
		return fmt.Errorf("%w: start %d must be below stop %d", ErrInvalidRange, r.Start, r.Stop)
	}
	if r.Step <= 0 {
		return fmt.Errorf("%w: step must be positive: %d", ErrInvalidRange, r.Step)
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive: %d", ErrInvalidRange, r.SampleRate)
	}
	if r.FFTSize() < 2 {
		return fmt.Errorf("%w: step %d is too coarse for sample rate %d", ErrInvalidRange, r.Step, r.SampleRate)
	}
	return nil
}

func (r FrequencyRange) String() string {
	return fmt.Sprintf("%s - %s (center %s, step %s, sample rate %s)",
		FormatFrequency(r.Start),
		FormatFrequency(r.Stop),
		FormatFrequency(r.Center()),
		FormatFrequency(r.Step),
		FormatFrequency(r.SampleRate))
}

// Transmission is a detected transmission for a single scan cycle.
type Transmission struct {
	Range  FrequencyRange `json:"range"`  // Recording range centered on the transmission
	Active bool           `json:"active"` // Matched a strong signal during this cycle
	Power  Power          `json:"power"`  // Strongest power seen in the group during this cycle
}

// Spectrogram is an averaged power spectrum captured at a point in time.
type Spectrogram struct {
	Time    time.Time      `json:"time"`
	Range   FrequencyRange `json:"range"`
	Signals []Signal       `json:"signals"`
}
