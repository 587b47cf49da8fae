package sdr

import (
	"context"
	"os/exec"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Block is a chunk of baseband IQ samples read from a device.
type Block struct {
	Time    time.Time               // When the block was read
	Range   spectrum.FrequencyRange // Range the device was tuned to
	Samples []complex64             // Normalized IQ samples
}

// Device is the capability set the scanner needs from an SDR.
type Device interface {
	// Name returns a human-readable device name, unique per process.
	Name() string

	// Offset returns the frequency offset of an up/down converter in front of
	// the device, zero if there is none.
	Offset() spectrum.Frequency

	// ReadData tunes to r and captures a single block of samples.
	ReadData(ctx context.Context, r spectrum.FrequencyRange) (Block, error)

	// StartStream tunes to r and publishes blocks until Stop is called, the
	// context is cancelled or the device fails. The channel is closed when the
	// stream ends.
	StartStream(ctx context.Context, r spectrum.FrequencyRange) (<-chan Block, error)

	// Stop ends a running stream and returns the error that terminated it, if
	// any.
	Stop() error
}

// Handler is implemented by vendor tools that capture raw IQ to stdout.
type Handler interface {
	// Cmd builds the capture command. A zero samples count streams forever.
	Cmd(ctx context.Context, r spectrum.FrequencyRange, samples int) *exec.Cmd

	// Decode converts raw interleaved IQ bytes into samples and returns the
	// number of samples written to dst.
	Decode(dst []complex64, src []byte) int

	// Device returns the vendor device name.
	Device() string
}

// SamplesCount returns the number of samples captured at sampleRate during d.
func SamplesCount(sampleRate spectrum.Frequency, d time.Duration) int {
	return int(int64(sampleRate) * d.Milliseconds() / 1000)
}

// DecodeUint8 decodes offset-binary IQ pairs as produced by RTL-SDR dongles.
func DecodeUint8(dst []complex64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		re := (float32(src[2*i]) - 127.5) / 127.5
		im := (float32(src[2*i+1]) - 127.5) / 127.5
		dst[i] = complex(re, im)
	}
	return n
}

// DecodeInt8 decodes signed IQ pairs as produced by HackRF.
func DecodeInt8(dst []complex64, src []byte) int {
	n := min(len(dst), len(src)/2)
	for i := 0; i < n; i++ {
		re := float32(int8(src[2*i])) / 128
		im := float32(int8(src[2*i+1])) / 128
		dst[i] = complex(re, im)
	}
	return n
}
