package detection

import (
	"fmt"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	DefaultGroupSize             spectrum.Frequency = 2_500
	DefaultRecordingBandwidth    spectrum.Frequency = 32_000
	DefaultSignalMatchMargin     spectrum.Frequency = 5_000
	DefaultNoiseDetectionMargin  spectrum.Power     = 6
	DefaultNoiseLearningSamples                     = 20
	DefaultMaxSilenceTime                           = 2 * time.Second
	DefaultMaxRecordingNoiseTime                    = 2 * time.Second
	DefaultMinRecordingTime                         = 2 * time.Second
	DefaultTornLearningTime                         = time.Minute
)

// Config holds the detection thresholds. Zero values are replaced by defaults
// in WithDefaults.
type Config struct {
	GroupSize            spectrum.Frequency // Width used to round signal frequencies to a group key
	RecordingBandwidth   spectrum.Frequency // Bandwidth of the range reported for a transmission
	SignalMatchMargin    spectrum.Frequency // Max distance from a group's majority frequency
	NoiseDetectionMargin spectrum.Power     // Added to the learned mean noise
	NoiseLearningSamples int                // Observations per noise level update

	MaxSilenceTime        time.Duration // Matcher groups expire after this much silence
	MaxRecordingNoiseTime time.Duration // Transmissions are dropped after this much silence
	MinRecordingTime      time.Duration // Transmissions averaging less are considered torn

	TornLearningTime      time.Duration // Learning window of both torn detectors
	TornMaxAllowedChanges int           // Max signal count per window, zero disables the filter

	Ignored []spectrum.Range // Signals inside these bands are never reported
}

// WithDefaults returns a copy of c with zero fields set to defaults.
func (c Config) WithDefaults() Config {
	if c.GroupSize == 0 {
		c.GroupSize = DefaultGroupSize
	}
	if c.RecordingBandwidth == 0 {
		c.RecordingBandwidth = DefaultRecordingBandwidth
	}
	if c.SignalMatchMargin == 0 {
		c.SignalMatchMargin = DefaultSignalMatchMargin
	}
	if c.NoiseDetectionMargin == 0 {
		c.NoiseDetectionMargin = DefaultNoiseDetectionMargin
	}
	if c.NoiseLearningSamples == 0 {
		c.NoiseLearningSamples = DefaultNoiseLearningSamples
	}
	if c.MaxSilenceTime == 0 {
		c.MaxSilenceTime = DefaultMaxSilenceTime
	}
	if c.MaxRecordingNoiseTime == 0 {
		c.MaxRecordingNoiseTime = DefaultMaxRecordingNoiseTime
	}
	if c.MinRecordingTime == 0 {
		c.MinRecordingTime = DefaultMinRecordingTime
	}
	if c.TornLearningTime == 0 {
		c.TornLearningTime = DefaultTornLearningTime
	}
	return c
}

func (c Config) Validate() error {
	if c.GroupSize <= 0 {
		return fmt.Errorf("detection.Config: group size must be positive: %d", c.GroupSize)
	}
	if c.RecordingBandwidth <= 0 {
		return fmt.Errorf("detection.Config: recording bandwidth must be positive: %d", c.RecordingBandwidth)
	}
	if c.SignalMatchMargin < 0 {
		return fmt.Errorf("detection.Config: signal match margin must not be negative: %d", c.SignalMatchMargin)
	}
	if c.NoiseLearningSamples <= 0 {
		return fmt.Errorf("detection.Config: noise learning samples must be positive: %d", c.NoiseLearningSamples)
	}
	if c.MaxSilenceTime <= 0 || c.MaxRecordingNoiseTime <= 0 {
		return fmt.Errorf("detection.Config: silence timeouts must be positive: %s, %s", c.MaxSilenceTime, c.MaxRecordingNoiseTime)
	}
	if c.MinRecordingTime < 0 {
		return fmt.Errorf("detection.Config: min recording time must not be negative: %s", c.MinRecordingTime)
	}
	if c.TornLearningTime <= 0 {
		return fmt.Errorf("detection.Config: torn learning time must be positive: %s", c.TornLearningTime)
	}
	if c.TornMaxAllowedChanges < 0 {
		return fmt.Errorf("detection.Config: torn max allowed changes must not be negative: %d", c.TornMaxAllowedChanges)
	}
	for _, r := range c.Ignored {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("detection.Config: invalid ignored range: %w", err)
		}
	}
	return nil
}

// groupKey rounds f to the nearest multiple of size, halves rounding down.
func groupKey(f, size spectrum.Frequency) spectrum.Frequency {
	rest := f % size
	if rest <= size/2 {
		return f - rest
	}
	return f - rest + size
}

// groupRange is the recording range centered on a group key.
func groupRange(center, bandwidth, step spectrum.Frequency) spectrum.FrequencyRange {
	return spectrum.FrequencyRange{
		Start:      center - bandwidth/2,
		Stop:       center + bandwidth/2,
		Step:       step,
		SampleRate: bandwidth,
	}
}
