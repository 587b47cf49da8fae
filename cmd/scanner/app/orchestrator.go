package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/radio-scanner/internal/metrics"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/hackrf"
	"github.com/roman-kulish/radio-scanner/internal/sdr/rtl"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
	"github.com/roman-kulish/radio-scanner/internal/storage"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

// HandlerFactory creates the capture tool handler of a device
type HandlerFactory func(d DeviceConfig) (sdr.Handler, error)

// WithLogger sets the orchestrator logger
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPublisher sets the telemetry publisher shared by all scanners
func WithPublisher(p telemetry.Publisher) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithMetrics sets the metrics shared by all scanners
func WithMetrics(m *metrics.Metrics) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithStatusPublisher announces scanner starts and stops
func WithStatusPublisher(p telemetry.StatusPublisher) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.status = p
	}
}

// WithRestart sets the function a remote restart request calls
func WithRestart(fn func()) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.restart = fn
	}
}

// WithHandlerFactory replaces the driver lookup of CreateDevice
func WithHandlerFactory(fn HandlerFactory) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.newHandler = fn
	}
}

type managedScanner struct {
	name    string
	scanner *scanner.Scanner
	status  string
}

// Orchestrator owns one scanner per enabled device, records a storage
// session for each, and runs them concurrently. It serves remote control
// commands addressed by device name.
type Orchestrator struct {
	config   *Config
	scanners []*managedScanner
	names    map[string]*managedScanner

	store      storage.Store
	publisher  telemetry.Publisher
	status     telemetry.StatusPublisher
	restart    func()
	metrics    *metrics.Metrics
	newHandler HandlerFactory

	mu     sync.Mutex // guards managedScanner.status
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, store storage.Store, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		config:     config,
		names:      make(map[string]*managedScanner),
		store:      store,
		publisher:  telemetry.Discard{},
		newHandler: newHandler,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&o)
	}

	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	return &o
}

func newHandler(d DeviceConfig) (sdr.Handler, error) {
	switch d.Driver {
	case DriverRTLSDR:
		handler, err := rtl.New(d.RTL)
		if err != nil {
			return nil, fmt.Errorf("creating RTL-SDR device: %w", err)
		}
		return handler, nil

	case DriverHackRF:
		handler, err := hackrf.New(d.HackRF)
		if err != nil {
			return nil, fmt.Errorf("creating HackRF device: %w", err)
		}
		return handler, nil

	default:
		return nil, fmt.Errorf("creating device: unknown driver '%s'", d.Driver)
	}
}

// CreateDevice creates a device, opens its storage session and registers its
// scanner with the Orchestrator. Disabled devices are skipped.
func (o *Orchestrator) CreateDevice(ctx context.Context, d DeviceConfig) error {
	if !d.Enabled {
		return nil
	}
	if _, ok := o.names[d.Name]; ok {
		return fmt.Errorf("device %s already exists", d.Name)
	}

	ranges, err := spectrum.FitAll(d.Ranges, d.SampleRate, o.config.Scanning.Step)
	if err != nil {
		return fmt.Errorf("fitting ranges of device %s: %w", d.Name, err)
	}

	handler, err := o.newHandler(d)
	if err != nil {
		return err
	}

	deviceOptions := append(o.config.DeviceOptions(d),
		sdr.WithLogger(o.logger),
		sdr.WithStreamOverflowHandler(o.metrics.OverflowHandler(d.Name)))
	device := sdr.NewStreamDevice(d.Name, handler, deviceOptions...)

	session, err := o.store.CreateSession(ctx, handler.Device(), d.Name, d)
	if err != nil {
		return fmt.Errorf("creating session for device %s: %w", d.Name, err)
	}

	s, err := scanner.New(device, ranges, o.config.ScannerConfig(d),
		scanner.WithLogger(o.logger),
		scanner.WithPublisher(o.publisher),
		scanner.WithStore(o.store, session.ID),
		scanner.WithMetrics(o.metrics),
		scanner.WithProcessorWorkers(o.config.Scanning.Workers))
	if err != nil {
		return fmt.Errorf("creating scanner for device %s: %w", d.Name, err)
	}

	o.logger.Info("device ready",
		slog.String("device", device.Name()),
		slog.Int("ranges", len(ranges)),
		slog.Int64("session", session.ID),
		slog.String("sessionUUID", session.UUID.String()))

	m := &managedScanner{name: d.Name, scanner: s, status: telemetry.StatusStopped}
	o.names[d.Name] = m
	o.scanners = append(o.scanners, m)
	return nil
}

// Scanners returns the number of registered scanners
func (o *Orchestrator) Scanners() int {
	return len(o.scanners)
}

// Run scans on all devices until the context is cancelled
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.scanners) == 0 {
		return fmt.Errorf("no devices to scan")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range o.scanners {
		g.Go(func() error {
			o.setStatus(m, telemetry.StatusRunning)
			defer o.setStatus(m, telemetry.StatusStopped)

			return m.scanner.Run(ctx)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) setStatus(m *managedScanner, status string) {
	o.mu.Lock()
	m.status = status
	o.mu.Unlock()

	o.logger.Info("device "+status, slog.String("device", m.name))
	if o.status != nil {
		o.status.PublishStatus(o.deviceStatus(m, status))
	}
}

func (o *Orchestrator) deviceStatus(m *managedScanner, status string) telemetry.DeviceStatus {
	return telemetry.DeviceStatus{
		Device: m.name,
		Status: status,
		Ranges: m.scanner.Ranges(),
		Time:   time.Now(),
	}
}

// Statuses returns the current status of every device
func (o *Orchestrator) Statuses() []telemetry.DeviceStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	statuses := make([]telemetry.DeviceStatus, 0, len(o.scanners))
	for _, m := range o.scanners {
		statuses = append(statuses, o.deviceStatus(m, m.status))
	}
	return statuses
}

// RequestRecording asks the scanner of device to record frequency for d
func (o *Orchestrator) RequestRecording(device string, frequency spectrum.Frequency, d time.Duration) error {
	m, ok := o.names[device]
	if !ok {
		return fmt.Errorf("unknown device '%s'", device)
	}
	return m.scanner.RequestRecording(frequency, d)
}

// Restart stops all scanners so the service manager can start the process
// again
func (o *Orchestrator) Restart() {
	if o.restart == nil {
		o.logger.Warn("restart is not supported")
		return
	}
	o.restart()
}
