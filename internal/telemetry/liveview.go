package telemetry

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	clientBufferSize = 16
	writeTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SpectrogramMessage is the JSON frame pushed to live view clients
type SpectrogramMessage struct {
	Type        string               `json:"type"`
	Device      string               `json:"device"`
	Frequencies []spectrum.Frequency `json:"frequencies"`
	Powers      []spectrum.Power     `json:"powers"`
	TimestampMs int64                `json:"timestamp_ms"`
}

func NewSpectrogramMessage(device string, s spectrum.Spectrogram) SpectrogramMessage {
	m := SpectrogramMessage{
		Type:        "spectrogram",
		Device:      device,
		Frequencies: make([]spectrum.Frequency, len(s.Signals)),
		Powers:      make([]spectrum.Power, len(s.Signals)),
		TimestampMs: s.Time.UnixMilli(),
	}
	for i, signal := range s.Signals {
		m.Frequencies[i] = signal.Frequency
		m.Powers[i] = signal.Power
	}
	return m
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// LiveView pushes spectrograms to connected WebSocket clients. Slow clients
// miss frames rather than hold up the scanner.
type LiveView struct {
	logger *slog.Logger

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// WithLiveViewLogger sets the live view logger
func WithLiveViewLogger(logger *slog.Logger) func(v *LiveView) {
	return func(v *LiveView) {
		v.logger = logger.With(slog.String("component", "liveview"))
	}
}

func NewLiveView(options ...func(v *LiveView)) *LiveView {
	v := &LiveView{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		viewers: make(map[*viewer]struct{}),
	}
	for _, option := range options {
		option(v)
	}
	return v
}

// ServeHTTP upgrades the request and streams frames until the client leaves
func (v *LiveView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.logger.Warn("error upgrading live view connection", slog.Any("error", err))
		return
	}

	c := &viewer{conn: conn, send: make(chan []byte, clientBufferSize)}
	v.mu.Lock()
	v.viewers[c] = struct{}{}
	v.mu.Unlock()

	v.logger.Info("live view client connected", slog.String("remote", r.RemoteAddr))

	go c.writePump()

	// reads only detect the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	v.remove(c)
	v.logger.Info("live view client disconnected", slog.String("remote", r.RemoteAddr))
}

func (c *viewer) writePump() {
	defer c.conn.Close()

	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (v *LiveView) remove(c *viewer) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.viewers[c]; ok {
		delete(v.viewers, c)
		close(c.send)
	}
}

// Viewers returns the number of connected clients
func (v *LiveView) Viewers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.viewers)
}

func (v *LiveView) PublishTransmission(string, time.Time, spectrum.FrequencyRange, []complex64) {}

func (v *LiveView) PublishSpectrogram(device string, s spectrum.Spectrogram) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.viewers) == 0 {
		return
	}

	frame, err := json.Marshal(NewSpectrogramMessage(device, s))
	if err != nil {
		v.logger.Error("error encoding live view frame", slog.Any("error", err))
		return
	}

	for c := range v.viewers {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// Close disconnects every client
func (v *LiveView) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for c := range v.viewers {
		delete(v.viewers, c)
		close(c.send)
	}
	return nil
}
