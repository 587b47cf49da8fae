package telemetry

import (
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Publisher ships telemetry to remote consumers. Implementations must not
// block the caller: payloads that cannot be delivered in time are dropped.
type Publisher interface {
	PublishTransmission(device string, t time.Time, r spectrum.FrequencyRange, samples []complex64)
	PublishSpectrogram(device string, s spectrum.Spectrogram)
}

// Discard is a Publisher that drops everything
type Discard struct{}

func (Discard) PublishTransmission(string, time.Time, spectrum.FrequencyRange, []complex64) {}
func (Discard) PublishSpectrogram(string, spectrum.Spectrogram)                            {}

// Multi fans telemetry out to several publishers
type Multi []Publisher

func (m Multi) PublishTransmission(device string, t time.Time, r spectrum.FrequencyRange, samples []complex64) {
	for _, p := range m {
		p.PublishTransmission(device, t, r, samples)
	}
}

func (m Multi) PublishSpectrogram(device string, s spectrum.Spectrogram) {
	for _, p := range m {
		p.PublishSpectrogram(device, s)
	}
}

// TransmissionSink forwards the baseband samples of one recording to a
// publisher. It satisfies the recorder sink contract.
type TransmissionSink struct {
	publisher Publisher
	device    string
	r         spectrum.FrequencyRange
}

func NewTransmissionSink(publisher Publisher, device string, r spectrum.FrequencyRange) *TransmissionSink {
	return &TransmissionSink{publisher: publisher, device: device, r: r}
}

func (s *TransmissionSink) Write(t time.Time, samples []complex64) error {
	s.publisher.PublishTransmission(s.device, t, s.r, samples)
	return nil
}

func (s *TransmissionSink) Close() error {
	return nil
}
