package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

type recordingCall struct {
	device    string
	frequency spectrum.Frequency
	duration  time.Duration
}

type fakeController struct {
	calls    []recordingCall
	restarts int
	err      error
}

func (c *fakeController) RequestRecording(device string, frequency spectrum.Frequency, d time.Duration) error {
	c.calls = append(c.calls, recordingCall{device, frequency, d})
	return c.err
}

func (c *fakeController) Statuses() []DeviceStatus {
	return []DeviceStatus{
		{Device: "rtl0", Status: StatusRunning},
		{Device: "hackrf0", Status: StatusStopped},
	}
}

func (c *fakeController) Restart() {
	c.restarts++
}

func TestMQTTPublisher_Serve(t *testing.T) {
	b := &fakeBroker{}
	p := newPublisher(b, MQTTConfig{Broker: "tcp://test:1883", ClientID: "scanner-1"}.WithDefaults())
	c := &fakeController{}

	if err := p.Serve(c); err != nil {
		t.Fatalf("Serve() unexpected error: %v", err)
	}
	for _, topic := range []string{"sdr/list", "sdr/manual_recording", "sdr/restart/scanner-1"} {
		if _, ok := b.handlers[topic]; !ok {
			t.Errorf("not subscribed to %s", topic)
		}
	}

	b.deliver(t, "sdr/manual_recording", `{"device":"rtl0","frequency":145500000,"seconds":30}`)
	b.deliver(t, "sdr/manual_recording", `{"device":"rtl0","frequency":145500000}`)
	b.deliver(t, "sdr/manual_recording", `not json`)

	want := recordingCall{"rtl0", 145_500_000, 30 * time.Second}
	if len(c.calls) != 1 || c.calls[0] != want {
		t.Errorf("recording calls = %+v, want only %+v", c.calls, want)
	}

	c.err = errors.New("busy")
	b.deliver(t, "sdr/manual_recording", `{"device":"rtl0","frequency":145500000,"seconds":5}`)
	if len(c.calls) != 2 {
		t.Errorf("rejected request was not passed on, calls %+v", c.calls)
	}

	b.deliver(t, "sdr/restart/scanner-1", "")
	if c.restarts != 1 {
		t.Errorf("restarts = %d, want 1", c.restarts)
	}

	b.deliver(t, "sdr/list", "")
	go p.run()
	_ = p.Close()

	if len(b.messages) != 2 {
		t.Fatalf("published %d messages, want a status per device", len(b.messages))
	}
	if b.messages[0].topic != "sdr/status/rtl0" || b.messages[1].topic != "sdr/status/hackrf0" {
		t.Errorf("status topics = %s, %s", b.messages[0].topic, b.messages[1].topic)
	}

	var status DeviceStatus
	if err := json.Unmarshal(b.messages[1].payload, &status); err != nil {
		t.Fatalf("status payload unexpected error: %v", err)
	}
	if status.Device != "hackrf0" || status.Status != StatusStopped {
		t.Errorf("status = %+v", status)
	}
}

func TestRecordingRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     RecordingRequest
		wantErr bool
	}{
		{"valid", RecordingRequest{Device: "rtl0", Frequency: 145_500_000, Seconds: 10}, false},
		{"no device", RecordingRequest{Frequency: 145_500_000, Seconds: 10}, true},
		{"no frequency", RecordingRequest{Device: "rtl0", Seconds: 10}, true},
		{"negative seconds", RecordingRequest{Device: "rtl0", Frequency: 145_500_000, Seconds: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
