package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

func TestTransmission_RoundTrip(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	r := spectrum.FrequencyRange{Start: 145_484_000, Stop: 145_516_000, Step: 2_500, SampleRate: 32_000}
	samples := []complex64{
		complex(1, 0),
		complex(-1, 0.5),
		complex(0.25, -1),
		complex(2, -2), // clamped
	}
	want := []complex64{
		complex(1, 0),
		complex(-1, 64.0/127),
		complex(32.0/127, -1),
		complex(1, -128.0/127),
	}

	payload := EncodeTransmission(at, r, samples)
	if len(payload) != transmissionHeaderSize+2*len(samples) {
		t.Fatalf("payload size = %d, want %d", len(payload), transmissionHeaderSize+2*len(samples))
	}

	got, err := DecodeTransmission(payload)
	if err != nil {
		t.Fatalf("DecodeTransmission() unexpected error: %v", err)
	}
	if !got.Time.Equal(at) {
		t.Errorf("time = %v, want %v", got.Time, at)
	}
	if got.Start != r.Start || got.Stop != r.Stop {
		t.Errorf("range = %d-%d, want %d-%d", got.Start, got.Stop, r.Start, r.Stop)
	}
	if len(got.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got.Samples), len(want))
	}
	for i := range want {
		if math.Abs(float64(real(got.Samples[i]-want[i]))) > 1e-6 || math.Abs(float64(imag(got.Samples[i]-want[i]))) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got.Samples[i], want[i])
		}
	}
}

func TestSpectrogram_RoundTrip(t *testing.T) {
	s := spectrum.Spectrogram{
		Time:  time.UnixMilli(1_700_000_000_000),
		Range: spectrum.FrequencyRange{Start: 100_000, Stop: 110_000, Step: 2_500, SampleRate: 10_000},
		Signals: []spectrum.Signal{
			{Frequency: 100_000, Power: -20.4},
			{Frequency: 102_500, Power: -20.6},
			{Frequency: 105_000, Power: 200},
			{Frequency: 107_500, Power: -300},
		},
	}

	got, err := DecodeSpectrogram(EncodeSpectrogram(s))
	if err != nil {
		t.Fatalf("DecodeSpectrogram() unexpected error: %v", err)
	}

	if got.Range != s.Range {
		t.Errorf("range = %v, want %v", got.Range, s.Range)
	}
	if !got.Time.Equal(s.Time) {
		t.Errorf("time = %v, want %v", got.Time, s.Time)
	}

	want := []spectrum.Power{-20, -21, 127, -128}
	for i, signal := range got.Signals {
		if signal.Frequency != s.Signals[i].Frequency {
			t.Errorf("bin %d frequency = %d, want %d", i, signal.Frequency, s.Signals[i].Frequency)
		}
		if signal.Power != want[i] {
			t.Errorf("bin %d power = %v, want %v", i, signal.Power, want[i])
		}
	}
}

func TestDecode_ShortPayload(t *testing.T) {
	r := spectrum.FrequencyRange{Start: 1_000, Stop: 2_000, Step: 100, SampleRate: 1_000}
	transmission := EncodeTransmission(time.Now(), r, make([]complex64, 10))
	spectrogram := EncodeSpectrogram(spectrum.Spectrogram{Range: r, Signals: make([]spectrum.Signal, 10)})

	tests := []struct {
		name   string
		decode func() error
	}{
		{"transmission header", func() error { _, err := DecodeTransmission(transmission[:10]); return err }},
		{"transmission samples", func() error { _, err := DecodeTransmission(transmission[:len(transmission)-1]); return err }},
		{"spectrogram header", func() error { _, err := DecodeSpectrogram(spectrogram[:20]); return err }},
		{"spectrogram bins", func() error { _, err := DecodeSpectrogram(spectrogram[:len(spectrogram)-3]); return err }},
		{"empty", func() error { _, err := DecodeSpectrogram(nil); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.decode(); !errors.Is(err, ErrShortPayload) {
				t.Errorf("error = %v, want ErrShortPayload", err)
			}
		})
	}
}

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float64
		want int8
	}{
		{0.4, 0},
		{0.5, 1},
		{-0.5, -1},
		{126.6, 127},
		{1e9, 127},
		{-1e9, -128},
		{math.NaN(), 0},
	}

	for _, tt := range tests {
		if got := quantize(tt.in); got != tt.want {
			t.Errorf("quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
