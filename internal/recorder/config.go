package recorder

import (
	"fmt"
	"runtime"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	DefaultBandwidth      spectrum.Frequency = 32_000
	DefaultQueueSize                         = 16
	DefaultMaxSilenceTime                    = 2 * time.Second
)

type Config struct {
	Bandwidth      spectrum.Frequency // Output bandwidth, the decimation target
	Workers        int                // Decimation workers per recorder
	QueueSize      int                // Capacity of the input and output queues
	MaxSilenceTime time.Duration      // A recorder finishes after this long without active samples
}

func (c Config) WithDefaults() Config {
	if c.Bandwidth == 0 {
		c.Bandwidth = DefaultBandwidth
	}
	if c.Workers == 0 {
		c.Workers = max(1, runtime.NumCPU()/2)
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxSilenceTime == 0 {
		c.MaxSilenceTime = DefaultMaxSilenceTime
	}
	return c
}

func (c Config) Validate() error {
	if c.Bandwidth <= 0 {
		return fmt.Errorf("recorder.Config: bandwidth must be positive: %d", c.Bandwidth)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("recorder.Config: workers must be positive: %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("recorder.Config: queue size must be positive: %d", c.QueueSize)
	}
	if c.MaxSilenceTime <= 0 {
		return fmt.Errorf("recorder.Config: max silence time must be positive: %s", c.MaxSilenceTime)
	}
	return nil
}
