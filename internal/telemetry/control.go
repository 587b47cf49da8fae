package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	statusTopic          = "status"
	listTopic            = "list"
	manualRecordingTopic = "manual_recording"
	restartTopic         = "restart"

	StatusRunning = "running"
	StatusStopped = "stopped"
)

// DeviceStatus is published on <prefix>/status/<device> when a scanner
// starts or stops, and for every device on a list request.
type DeviceStatus struct {
	Device string                    `json:"device"`
	Status string                    `json:"status"`
	Ranges []spectrum.FrequencyRange `json:"ranges"`
	Time   time.Time                 `json:"time"`
}

// RecordingRequest is received on <prefix>/manual_recording
type RecordingRequest struct {
	Device    string             `json:"device"`
	Frequency spectrum.Frequency `json:"frequency"`
	Seconds   int                `json:"seconds"`
}

func (r RecordingRequest) Validate() error {
	var errs []error
	if r.Device == "" {
		errs = append(errs, errors.New("device is required"))
	}
	if r.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive: %d", r.Frequency))
	}
	if r.Seconds <= 0 {
		errs = append(errs, fmt.Errorf("seconds must be positive: %d", r.Seconds))
	}
	return errors.Join(errs...)
}

func (r RecordingRequest) Duration() time.Duration {
	return time.Duration(r.Seconds) * time.Second
}

// StatusPublisher announces device state changes
type StatusPublisher interface {
	PublishStatus(s DeviceStatus)
}

// Controller carries out the commands received from the broker
type Controller interface {
	RequestRecording(device string, frequency spectrum.Frequency, d time.Duration) error
	Statuses() []DeviceStatus
	Restart()
}

func (p *MQTTPublisher) StatusTopic(device string) string {
	return p.config.TopicPrefix + "/" + statusTopic + "/" + device
}

func (p *MQTTPublisher) PublishStatus(s DeviceStatus) {
	payload, err := json.Marshal(s)
	if err != nil {
		p.logger.Error("error encoding device status", slog.Any("error", err))
		return
	}
	p.enqueue(message{p.StatusTopic(s.Device), payload})
}

// Serve subscribes to the remote control topics and hands their commands to
// c. The restart topic is scoped to the client ID so a single instance can be
// restarted.
func (p *MQTTPublisher) Serve(c Controller) error {
	prefix := p.config.TopicPrefix
	handlers := map[string]func(payload []byte){
		prefix + "/" + listTopic: func([]byte) {
			for _, s := range c.Statuses() {
				p.PublishStatus(s)
			}
		},
		prefix + "/" + manualRecordingTopic: func(payload []byte) {
			p.handleRecordingRequest(c, payload)
		},
		prefix + "/" + restartTopic + "/" + p.config.ClientID: func([]byte) {
			p.logger.Warn("restart requested")
			c.Restart()
		},
	}

	for topic, handler := range handlers {
		if err := p.broker.subscribe(topic, p.config.QoS, handler); err != nil {
			return fmt.Errorf("error subscribing to %s: %w", topic, err)
		}
		p.logger.Info("subscribed", slog.String("topic", topic))
	}
	return nil
}

func (p *MQTTPublisher) handleRecordingRequest(c Controller, payload []byte) {
	var req RecordingRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		p.logger.Warn("invalid manual recording request", slog.Any("error", err))
		return
	}
	if err := req.Validate(); err != nil {
		p.logger.Warn("invalid manual recording request", slog.Any("error", err))
		return
	}

	if err := c.RequestRecording(req.Device, req.Frequency, req.Duration()); err != nil {
		p.logger.Warn("manual recording rejected",
			slog.String("device", req.Device),
			slog.String("frequency", req.Frequency.String()),
			slog.Any("error", err))
		return
	}

	p.logger.Info("manual recording requested",
		slog.String("device", req.Device),
		slog.String("frequency", req.Frequency.String()),
		slog.Int("seconds", req.Seconds))
}
