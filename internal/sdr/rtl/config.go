package rtl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	MaxGain    = 49.6
	MaxPPM     = 1000
	BlockAlign = 512

	// Sample rates outside these bands are rejected by the RTL2832U
	sampleRateLowMin  = 225_001
	sampleRateLowMax  = 300_000
	sampleRateHighMin = 900_001
	sampleRateHighMax = 3_200_000
)

// Usage from the man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html

/*
    rtlConfig := rtl.Config{
        DeviceIndex: 0,
        Gain:        ptr(29.7),
    }
    // Tuned to 144-146.048 MHz at 2.048 Msps, 512000 samples:
    // Executes: rtl_sdr -f 145024000 -s 2048000 -d 0 -g 29.7 -n 512000 -
*/

// Config is the `rtl_sdr` tool configuration
type Config struct {
	DeviceIndex int      `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)
	Gain        *float64 `yaml:"gain" json:"gain"`               // -g tuner_gain in dB (default: automatic)
	PPMError    int      `yaml:"ppmError" json:"ppmError"`       // -p ppm_error (default: 0)
	BlockSize   int      `yaml:"blockSize" json:"blockSize"`     // -b output_block_size in bytes (default: 16 * 16384)
	SyncOutput  bool     `yaml:"syncOutput" json:"syncOutput"`   // -S force sync output (default: async)
	BiasTee     bool     `yaml:"biasTee" json:"biasTee"`         // -T enable bias-tee (default: off)
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d", c.DeviceIndex)
	}

	if c.Gain != nil && (*c.Gain < 0 || *c.Gain > MaxGain) {
		return fmt.Errorf("rtl.Config: gain must be between 0 and %.1f dB: %.1f given", MaxGain, *c.Gain)
	}

	if c.PPMError < -MaxPPM || c.PPMError > MaxPPM {
		return fmt.Errorf("rtl.Config: ppm error must be between -%d and %d: %d given", MaxPPM, MaxPPM, c.PPMError)
	}

	if c.BlockSize != 0 && (c.BlockSize < BlockAlign || c.BlockSize%BlockAlign != 0) {
		return fmt.Errorf("rtl.Config: block size must be a positive multiple of %d: %d given", BlockAlign, c.BlockSize)
	}

	return nil
}

// ValidateSampleRate checks the sample rate against the tuner limits
func ValidateSampleRate(sampleRate spectrum.Frequency) error {
	if (sampleRate >= sampleRateLowMin && sampleRate <= sampleRateLowMax) ||
		(sampleRate >= sampleRateHighMin && sampleRate <= sampleRateHighMax) {
		return nil
	}

	return fmt.Errorf("rtl.Config: unsupported sample rate: %d", sampleRate)
}

// Args returns the command line arguments for `rtl_sdr`. A zero samples count
// streams until the process is stopped.
func (c *Config) Args(r spectrum.FrequencyRange, samples int) []string {
	args := []string{
		"-f", strconv.FormatInt(int64(r.Center()), 10),
		"-s", strconv.FormatInt(int64(r.SampleRate), 10),
		"-d", strconv.Itoa(c.DeviceIndex),
	}

	if c.Gain != nil {
		args = append(args, "-g", strconv.FormatFloat(*c.Gain, 'f', 1, 64))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	if c.BlockSize > 0 {
		args = append(args, "-b", strconv.Itoa(c.BlockSize))
	}

	if samples > 0 {
		args = append(args, "-n", strconv.Itoa(samples))
	}

	if c.SyncOutput {
		args = append(args, "-S")
	}

	if c.BiasTee {
		args = append(args, "-T")
	}

	args = append(args, "-") // Always dump to stdout

	return args
}

func (c *Config) String() string {
	return fmt.Sprintf("%s device=%d ppm=%d", Runtime, c.DeviceIndex, c.PPMError)
}

// Command renders the command line for logging
func (c *Config) Command(r spectrum.FrequencyRange, samples int) string {
	return fmt.Sprintf("%s %s", Runtime, strings.Join(c.Args(r, samples), " "))
}
