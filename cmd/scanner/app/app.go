package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/radio-scanner/internal/metrics"
	"github.com/roman-kulish/radio-scanner/internal/storage"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// ErrRestartRequested is returned when a remote restart stopped the scanner.
// The process exits with an error so the service manager starts it again.
var ErrRestartRequested = errors.New("restart requested")

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	store, err := createStorage(config.Database)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	if config.Recording.OutputDir != "" {
		if err = os.MkdirAll(config.Recording.OutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	m := metrics.New()

	var (
		publishers telemetry.Multi
		mqtt       *telemetry.MQTTPublisher
	)
	if config.Telemetry.MQTT != nil {
		mqtt, err = telemetry.NewMQTTPublisher(*config.Telemetry.MQTT,
			telemetry.WithLogger(logger),
			telemetry.WithDropCounter(m.TelemetryDropped()))
		if err != nil {
			return fmt.Errorf("failed to connect telemetry: %w", err)
		}
		defer mqtt.Close()
		publishers = append(publishers, mqtt)
	}

	var servers []*http.Server
	if config.Telemetry.LiveView.Enabled {
		liveView := telemetry.NewLiveView(telemetry.WithLiveViewLogger(logger))
		defer liveView.Close()
		publishers = append(publishers, liveView)

		mux := http.NewServeMux()
		mux.Handle("/ws", liveView)
		servers = append(servers, &http.Server{Addr: config.Telemetry.LiveView.Address, Handler: mux})
	}
	if config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		servers = append(servers, &http.Server{Addr: config.Metrics.Address, Handler: mux})
	}

	options := []func(*Orchestrator){
		WithLogger(logger),
		WithMetrics(m),
		WithPublisher(publishers),
		WithRestart(func() { cancel(ErrRestartRequested) }),
	}
	if mqtt != nil {
		options = append(options, WithStatusPublisher(mqtt))
	}
	orchestrator := NewOrchestrator(config, store, options...)

	for _, d := range config.Devices {
		if err = orchestrator.CreateDevice(ctx, d); err != nil {
			return fmt.Errorf("failed to create devices: %w", err)
		}
	}
	if orchestrator.Scanners() == 0 {
		return fmt.Errorf("no devices specified on configuration")
	}

	if mqtt != nil {
		if err = mqtt.Serve(orchestrator); err != nil {
			return fmt.Errorf("failed to subscribe to remote control: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return orchestrator.Run(gctx)
	})

	if err = g.Wait(); err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrRestartRequested) {
		return cause
	}
	return nil
}

func createStorage(dbPath string) (*storage.SqliteStore, error) {
	dir := filepath.Dir(dbPath)
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(dbPath), nil
}
