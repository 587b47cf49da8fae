package hackrf

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/driver"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	Runtime = "hackrf_transfer"
	Device  = "HackRF"
)

// handler struct represents a HackRF handler
type handler struct {
	binPath string
	config  Config
}

// New creates a new HackRF handler
func New(config *Config) (sdr.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, driver.NewConfigError(Device, err)
	}

	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &handler{binPath, *config}, nil
}

// Cmd returns an exec.Cmd for the HackRF handler
func (h handler) Cmd(ctx context.Context, r spectrum.FrequencyRange, samples int) *exec.Cmd {
	return exec.CommandContext(ctx, h.binPath, h.config.Args(r, samples)...)
}

// Decode converts signed 8 bit IQ pairs
func (h handler) Decode(dst []complex64, src []byte) int {
	return sdr.DecodeInt8(dst, src)
}

func (h handler) Device() string {
	return Device
}
