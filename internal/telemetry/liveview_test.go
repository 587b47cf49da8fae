package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveView(t *testing.T) {
	v := NewLiveView()
	srv := httptest.NewServer(v)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() unexpected error: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return v.Viewers() == 1 })

	s := spectrum.Spectrogram{
		Time:  time.UnixMilli(1_700_000_000_000),
		Range: spectrum.FrequencyRange{Start: 100_000, Stop: 105_000, Step: 2_500, SampleRate: 5_000},
		Signals: []spectrum.Signal{
			{Frequency: 100_000, Power: -40},
			{Frequency: 102_500, Power: -12.5},
		},
	}
	v.PublishSpectrogram("rtl-0", s)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg SpectrogramMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() unexpected error: %v", err)
	}

	if msg.Type != "spectrogram" || msg.Device != "rtl-0" {
		t.Errorf("message type/device = %q/%q", msg.Type, msg.Device)
	}
	if msg.TimestampMs != 1_700_000_000_000 {
		t.Errorf("timestamp_ms = %d", msg.TimestampMs)
	}
	if len(msg.Frequencies) != 2 || msg.Frequencies[1] != 102_500 {
		t.Errorf("frequencies = %v", msg.Frequencies)
	}
	if len(msg.Powers) != 2 || msg.Powers[1] != -12.5 {
		t.Errorf("powers = %v", msg.Powers)
	}

	_ = conn.Close()
	waitFor(t, func() bool { return v.Viewers() == 0 })
}

func TestLiveView_NoViewers(t *testing.T) {
	v := NewLiveView()
	v.PublishSpectrogram("rtl-0", spectrum.Spectrogram{Signals: []spectrum.Signal{{Frequency: 1, Power: 1}}})
	if err := v.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
}
