package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

type fakeBroker struct {
	mu           sync.Mutex
	messages     []message
	handlers     map[string]func(payload []byte)
	disconnected bool
}

func (b *fakeBroker) subscribe(topic string, _ byte, handler func(payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]func(payload []byte))
	}
	b.handlers[topic] = handler
	return nil
}

// deliver hands payload to the handler subscribed to topic
func (b *fakeBroker) deliver(t *testing.T, topic string, payload string) {
	t.Helper()

	b.mu.Lock()
	handler, ok := b.handlers[topic]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription to %s", topic)
	}
	handler([]byte(payload))
}

func (b *fakeBroker) publish(topic string, _ byte, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message{topic, payload})
	return nil
}

func (b *fakeBroker) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = true
}

func TestMQTTPublisher_Publish(t *testing.T) {
	b := &fakeBroker{}
	p := newPublisher(b, MQTTConfig{Broker: "tcp://test:1883"}.WithDefaults())
	go p.run()

	r := spectrum.FrequencyRange{Start: 1_000, Stop: 2_000, Step: 100, SampleRate: 1_000}
	at := time.UnixMilli(42)

	p.PublishTransmission("rtl-0", at, r, []complex64{complex(0.5, -0.5)})
	p.PublishSpectrogram("rtl-0", spectrum.Spectrogram{Time: at, Range: r, Signals: []spectrum.Signal{{Frequency: 1_000, Power: -50}}})

	if err := p.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() unexpected error: %v", err)
	}

	if !b.disconnected {
		t.Errorf("broker was not disconnected")
	}
	if len(b.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(b.messages))
	}

	if b.messages[0].topic != "sdr/rtl-0/transmission" {
		t.Errorf("topic = %q, want sdr/rtl-0/transmission", b.messages[0].topic)
	}
	tr, err := DecodeTransmission(b.messages[0].payload)
	if err != nil {
		t.Fatalf("DecodeTransmission() unexpected error: %v", err)
	}
	if len(tr.Samples) != 1 || tr.Start != r.Start {
		t.Errorf("decoded transmission = %+v", tr)
	}

	if b.messages[1].topic != "sdr/rtl-0/spectrogram" {
		t.Errorf("topic = %q, want sdr/rtl-0/spectrogram", b.messages[1].topic)
	}

	// after Close
	p.PublishSpectrogram("rtl-0", spectrum.Spectrogram{Range: r})
	if len(b.messages) != 2 {
		t.Errorf("published after Close")
	}
}

func TestMQTTPublisher_DropsOnFullQueue(t *testing.T) {
	b := &fakeBroker{}
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "dropped"})
	p := newPublisher(b, MQTTConfig{Broker: "tcp://test:1883", QueueSize: 1}.WithDefaults(), WithDropCounter(dropped))

	r := spectrum.FrequencyRange{Start: 1_000, Stop: 2_000, Step: 100, SampleRate: 1_000}
	for range 3 {
		p.PublishSpectrogram("rtl-0", spectrum.Spectrogram{Range: r})
	}

	go p.run()
	_ = p.Close()

	if got := testutil.ToFloat64(dropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if len(b.messages) != 1 {
		t.Errorf("published %d messages, want 1", len(b.messages))
	}
}

func TestMQTTConfig(t *testing.T) {
	c := MQTTConfig{Broker: "tcp://localhost:1883"}.WithDefaults()
	if c.TopicPrefix != DefaultTopicPrefix || c.QueueSize != DefaultQueueSize || c.ClientID == "" {
		t.Errorf("WithDefaults() = %+v", c)
	}

	tests := []struct {
		name    string
		config  MQTTConfig
		wantErr bool
	}{
		{"valid", c, false},
		{"no broker", MQTTConfig{}, true},
		{"bad qos", MQTTConfig{Broker: "tcp://x:1883", QoS: 3}, true},
		{"negative queue", MQTTConfig{Broker: "tcp://x:1883", QueueSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type recordingPublisher struct {
	transmissions int
	spectrograms  int
}

func (p *recordingPublisher) PublishTransmission(string, time.Time, spectrum.FrequencyRange, []complex64) {
	p.transmissions++
}

func (p *recordingPublisher) PublishSpectrogram(string, spectrum.Spectrogram) {
	p.spectrograms++
}

func TestMultiAndTransmissionSink(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{}
	m := Multi{a, b, Discard{}}

	s := NewTransmissionSink(m, "rtl-0", spectrum.FrequencyRange{Start: 1, Stop: 2, Step: 1, SampleRate: 1})
	if err := s.Write(time.Now(), make([]complex64, 4)); err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	m.PublishSpectrogram("rtl-0", spectrum.Spectrogram{})

	for i, p := range []*recordingPublisher{a, b} {
		if p.transmissions != 1 || p.spectrograms != 1 {
			t.Errorf("publisher %d got %d transmissions, %d spectrograms, want 1 and 1", i, p.transmissions, p.spectrograms)
		}
	}
}
