package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// ErrShortPayload is returned when a payload is shorter than its header says.
var ErrShortPayload = errors.New("short telemetry payload")

const (
	transmissionHeaderSize = 8 + 8 + 8 + 4     // time_ms | start | stop | count
	spectrogramHeaderSize  = 8 + 8 + 8 + 8 + 4 // time_ms | start | stop | step | count

	sampleScale = 127
)

// Transmission is a decoded transmission payload.
type Transmission struct {
	Time    time.Time
	Start   spectrum.Frequency
	Stop    spectrum.Frequency
	Samples []complex64
}

// EncodeTransmission packs baseband samples of a transmission. Samples are
// quantized to signed 8 bit IQ pairs.
func EncodeTransmission(t time.Time, r spectrum.FrequencyRange, samples []complex64) []byte {
	buf := make([]byte, transmissionHeaderSize+2*len(samples))

	binary.LittleEndian.PutUint64(buf[0:], uint64(t.UnixMilli()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(r.Start))
	binary.LittleEndian.PutUint64(buf[16:], uint64(r.Stop))
	binary.LittleEndian.PutUint32(buf[24:], uint32(len(samples)))

	p := buf[transmissionHeaderSize:]
	for i, s := range samples {
		p[2*i] = byte(quantize(float64(real(s)) * sampleScale))
		p[2*i+1] = byte(quantize(float64(imag(s)) * sampleScale))
	}

	return buf
}

func DecodeTransmission(payload []byte) (Transmission, error) {
	if len(payload) < transmissionHeaderSize {
		return Transmission{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortPayload, len(payload), transmissionHeaderSize)
	}

	count := int(binary.LittleEndian.Uint32(payload[24:]))
	p := payload[transmissionHeaderSize:]
	if len(p) < 2*count {
		return Transmission{}, fmt.Errorf("%w: %d samples declared, %d bytes left", ErrShortPayload, count, len(p))
	}

	tr := Transmission{
		Time:    time.UnixMilli(int64(binary.LittleEndian.Uint64(payload[0:]))),
		Start:   spectrum.Frequency(int64(binary.LittleEndian.Uint64(payload[8:]))),
		Stop:    spectrum.Frequency(int64(binary.LittleEndian.Uint64(payload[16:]))),
		Samples: make([]complex64, count),
	}
	for i := range tr.Samples {
		tr.Samples[i] = complex(float32(int8(p[2*i]))/sampleScale, float32(int8(p[2*i+1]))/sampleScale)
	}

	return tr, nil
}

// EncodeSpectrogram packs a spectrum as int8 powers rounded to whole dB.
// Bins are expected at Start + i*Step.
func EncodeSpectrogram(s spectrum.Spectrogram) []byte {
	buf := make([]byte, spectrogramHeaderSize+len(s.Signals))

	binary.LittleEndian.PutUint64(buf[0:], uint64(s.Time.UnixMilli()))
	binary.LittleEndian.PutUint64(buf[8:], uint64(s.Range.Start))
	binary.LittleEndian.PutUint64(buf[16:], uint64(s.Range.Stop))
	binary.LittleEndian.PutUint64(buf[24:], uint64(s.Range.Step))
	binary.LittleEndian.PutUint32(buf[32:], uint32(len(s.Signals)))

	p := buf[spectrogramHeaderSize:]
	for i, signal := range s.Signals {
		p[i] = byte(quantize(float64(signal.Power)))
	}

	return buf
}

// DecodeSpectrogram is the inverse of EncodeSpectrogram. The sample rate of
// the decoded range is derived from the bin count.
func DecodeSpectrogram(payload []byte) (spectrum.Spectrogram, error) {
	if len(payload) < spectrogramHeaderSize {
		return spectrum.Spectrogram{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortPayload, len(payload), spectrogramHeaderSize)
	}

	count := int(binary.LittleEndian.Uint32(payload[32:]))
	p := payload[spectrogramHeaderSize:]
	if len(p) < count {
		return spectrum.Spectrogram{}, fmt.Errorf("%w: %d bins declared, %d bytes left", ErrShortPayload, count, len(p))
	}

	step := spectrum.Frequency(int64(binary.LittleEndian.Uint64(payload[24:])))
	s := spectrum.Spectrogram{
		Time: time.UnixMilli(int64(binary.LittleEndian.Uint64(payload[0:]))),
		Range: spectrum.FrequencyRange{
			Start:      spectrum.Frequency(int64(binary.LittleEndian.Uint64(payload[8:]))),
			Stop:       spectrum.Frequency(int64(binary.LittleEndian.Uint64(payload[16:]))),
			Step:       step,
			SampleRate: step * spectrum.Frequency(count),
		},
		Signals: make([]spectrum.Signal, count),
	}
	for i := range s.Signals {
		s.Signals[i] = spectrum.Signal{
			Frequency: s.Range.Start + spectrum.Frequency(i)*step,
			Power:     spectrum.Power(int8(p[i])),
		}
	}

	return s, nil
}

func quantize(v float64) int8 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt8:
		return math.MaxInt8
	case v <= math.MinInt8:
		return math.MinInt8
	}
	return int8(math.Round(v))
}
