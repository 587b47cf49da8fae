package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/detection"
	"github.com/roman-kulish/radio-scanner/internal/recorder"
)

const (
	DefaultAveragerDepth    = 5
	DefaultRecorders        = 1
	DefaultRetryInterval    = time.Second
	DefaultMaxRetryInterval = 30 * time.Second
)

type Config struct {
	Detection detection.Config
	Recording recorder.Config

	AveragerDepth    int           // Number of spectra averaged before detection
	Recorders        int           // Concurrent recordings per device
	OutputDir        string        // WAV output directory, no audio files when empty
	SnapshotInterval int           // Store every Nth averaged spectrum, 0 disables snapshots
	RetryInterval    time.Duration // Initial delay before restarting a failed scan
	MaxRetryInterval time.Duration
}

func (c Config) WithDefaults() Config {
	c.Detection = c.Detection.WithDefaults()
	if c.Recording.Bandwidth == 0 {
		c.Recording.Bandwidth = c.Detection.RecordingBandwidth
	}
	if c.Recording.MaxSilenceTime == 0 {
		c.Recording.MaxSilenceTime = c.Detection.MaxSilenceTime
	}
	c.Recording = c.Recording.WithDefaults()

	if c.AveragerDepth == 0 {
		c.AveragerDepth = DefaultAveragerDepth
	}
	if c.Recorders == 0 {
		c.Recorders = DefaultRecorders
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxRetryInterval == 0 {
		c.MaxRetryInterval = DefaultMaxRetryInterval
	}
	return c
}

func (c Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	if err := c.Recording.Validate(); err != nil {
		return err
	}
	if c.Recording.Bandwidth != c.Detection.RecordingBandwidth {
		return fmt.Errorf("scanner.Config: recording bandwidth %d does not match detection bandwidth %d",
			c.Recording.Bandwidth, c.Detection.RecordingBandwidth)
	}
	if c.AveragerDepth <= 0 {
		return fmt.Errorf("scanner.Config: averager depth must be positive: %d", c.AveragerDepth)
	}
	if c.Recorders <= 0 {
		return fmt.Errorf("scanner.Config: recorders must be positive: %d", c.Recorders)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("scanner.Config: snapshot interval must not be negative: %d", c.SnapshotInterval)
	}
	if c.RetryInterval <= 0 || c.MaxRetryInterval < c.RetryInterval {
		return errors.New("scanner.Config: retry intervals must be positive and max must not be below initial")
	}
	return nil
}
