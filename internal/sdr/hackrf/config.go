package hackrf

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	MaxLNAGain    = 40
	MaxVGAGain    = 62
	LNAGainStep   = 8
	VGAGainStep   = 2
	MinSampleRate = 2_000_000
	MaxSampleRate = 20_000_000
)

// Usage from the man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	hackrfConfig := hackrf.Config{
        Serial:  "0000000000000000457863c8234e3e1f",
        LNAGain: ptr(16),
        VGAGain: ptr(20),
    }
    // Tuned to 140-150 MHz at 10 Msps, 2500000 samples:
    // Executes: hackrf_transfer -r - -f 145000000 -s 10000000 -d 0000... -l 16 -g 20 -n 2500000
*/

// Config is a struct for configuring the `hackrf_transfer` tool
type Config struct {
	Serial string `yaml:"serial" json:"serial"` // -d serial_number Serial number of desired HackRF

	LNAGain *int `yaml:"lnaGain" json:"lnaGain"` // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain *int `yaml:"vgaGain" json:"vgaGain"` // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps

	BasebandFilter int64 `yaml:"basebandFilter" json:"basebandFilter"` // -b baseband_filter_bw_hz (default: 0.75 * sample rate)

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable
}

func (c *Config) Validate() error {
	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return errors.New("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	if c.BasebandFilter < 0 {
		return fmt.Errorf("hackrf.Config: baseband filter must not be negative: %d given", c.BasebandFilter)
	}

	return nil
}

// ValidateSampleRate checks the sample rate against the transceiver limits
func ValidateSampleRate(sampleRate spectrum.Frequency) error {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return fmt.Errorf("hackrf.Config: sample rate must be between 2 and 20 Msps: %d given", sampleRate)
	}
	return nil
}

// Args builds the command line arguments for `hackrf_transfer`. A zero samples
// count streams until the process is stopped.
func (c *Config) Args(r spectrum.FrequencyRange, samples int) []string {
	args := []string{
		"-r", "-", // Always dump to stdout
		"-f", strconv.FormatInt(int64(r.Center()), 10),
		"-s", strconv.FormatInt(int64(r.SampleRate), 10),
	}

	if c.Serial != "" {
		args = append(args, "-d", c.Serial)
	}

	if c.LNAGain != nil {
		args = append(args, "-l", strconv.Itoa(*c.LNAGain))
	}

	if c.VGAGain != nil {
		args = append(args, "-g", strconv.Itoa(*c.VGAGain))
	}

	if c.BasebandFilter > 0 {
		args = append(args, "-b", strconv.FormatInt(c.BasebandFilter, 10))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	if samples > 0 {
		args = append(args, "-n", strconv.Itoa(samples))
	}

	return args
}
