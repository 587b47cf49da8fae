package app

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radio-scanner/internal/detection"
	"github.com/roman-kulish/radio-scanner/internal/recorder"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sdr/hackrf"
	"github.com/roman-kulish/radio-scanner/internal/sdr/rtl"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

const (
	DriverRTLSDR = "rtl"
	DriverHackRF = "hackrf"

	DefaultDatabase     = "data/scanner.sqlite"
	DefaultStep         = 2_500
	DefaultScanningTime = 2 * time.Second
	DefaultBlockTime    = 100 * time.Millisecond
	DefaultBufferTime   = 4 * time.Second
	DefaultMetricsAddr  = ":9090"
	DefaultLiveViewAddr = ":8080"
)

// Duration reads Go duration strings ("1m30s") or integer milliseconds
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if ms, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the main application configuration
type Config struct {
	LogLevel      slog.Level       `yaml:"logLevel"`
	Database      string           `yaml:"database"`
	Devices       []DeviceConfig   `yaml:"devices"`
	Scanning      ScanningConfig   `yaml:"scanning"`
	Detection     DetectionConfig  `yaml:"detection"`
	Recording     RecordingConfig  `yaml:"recording"`
	Telemetry     TelemetryConfig  `yaml:"telemetry"`
	Metrics       ServerConfig     `yaml:"metrics"`
	IgnoredRanges []spectrum.Range `yaml:"ignoredRanges"`
}

// DeviceConfig represents a single device configuration
type DeviceConfig struct {
	Name       string             `yaml:"name"`
	Driver     string             `yaml:"driver"`
	Enabled    bool               `yaml:"enabled"`
	SampleRate spectrum.Frequency `yaml:"sampleRate"`
	Offset     spectrum.Frequency `yaml:"offset"` // Up/down converter offset
	Recorders  int                `yaml:"recorders"`
	Ranges     []spectrum.Range   `yaml:"ranges"`

	RTL    *rtl.Config    `yaml:"rtl"`
	HackRF *hackrf.Config `yaml:"hackrf"`
}

// ScanningConfig controls device reads and spectrum processing
type ScanningConfig struct {
	Step             spectrum.Frequency `yaml:"step"` // FFT bin width
	ScanningTime     Duration           `yaml:"scanningTime"`
	BlockTime        Duration           `yaml:"blockTime"`
	BufferTime       Duration           `yaml:"bufferTime"`
	AveragerDepth    int                `yaml:"averagerDepth"`
	Workers          int                `yaml:"workers"`
	SnapshotInterval int                `yaml:"snapshotInterval"`
}

type DetectionConfig struct {
	GroupSize             spectrum.Frequency `yaml:"groupSize"`
	SignalMatchMargin     spectrum.Frequency `yaml:"signalMatchMargin"`
	NoiseDetectionMargin  spectrum.Power     `yaml:"noiseDetectionMargin"`
	NoiseLearningSamples  int                `yaml:"noiseLearningSamples"`
	MaxSilenceTime        Duration           `yaml:"maxSilenceTime"`
	MaxRecordingNoiseTime Duration           `yaml:"maxRecordingNoiseTime"`
	TornLearningTime      Duration           `yaml:"tornLearningTime"`
	TornMaxAllowedChanges int                `yaml:"tornMaxAllowedChanges"`
}

type RecordingConfig struct {
	OutputDir      string             `yaml:"outputDir"`
	Bandwidth      spectrum.Frequency `yaml:"bandwidth"`
	MinTime        Duration           `yaml:"minTime"`
	MaxSilenceTime Duration           `yaml:"maxSilenceTime"`
	Workers        int                `yaml:"workers"`
	QueueSize      int                `yaml:"queueSize"`
}

type TelemetryConfig struct {
	MQTT     *telemetry.MQTTConfig `yaml:"mqtt"`
	LiveView ServerConfig          `yaml:"liveView"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoadConfig reads a YAML configuration file, applies defaults and validates
// the result
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(p)
}

func ParseConfig(p []byte) (*Config, error) {
	var c Config

	decoder := yaml.NewDecoder(bytes.NewReader(p))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Scanning.Step == 0 {
		c.Scanning.Step = DefaultStep
	}
	if c.Scanning.ScanningTime == 0 {
		c.Scanning.ScanningTime = Duration(DefaultScanningTime)
	}
	if c.Scanning.BlockTime == 0 {
		c.Scanning.BlockTime = Duration(DefaultBlockTime)
	}
	if c.Scanning.BufferTime == 0 {
		c.Scanning.BufferTime = Duration(DefaultBufferTime)
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddr
	}
	if c.Telemetry.LiveView.Address == "" {
		c.Telemetry.LiveView.Address = DefaultLiveViewAddr
	}
	if c.Telemetry.MQTT != nil {
		mqtt := c.Telemetry.MQTT.WithDefaults()
		c.Telemetry.MQTT = &mqtt
	}
	for i := range c.Devices {
		if c.Devices[i].Recorders == 0 {
			c.Devices[i].Recorders = scanner.DefaultRecorders
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	names := make(map[string]struct{})
	enabled := 0
	for _, d := range c.Devices {
		if _, ok := names[d.Name]; ok {
			errs = append(errs, fmt.Errorf("app.Config: duplicate device name %q", d.Name))
		}
		names[d.Name] = struct{}{}

		if !d.Enabled {
			continue
		}
		enabled++
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("app.Config: no enabled devices"))
	}

	for _, r := range c.IgnoredRanges {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("app.Config: ignored range: %w", err))
		}
	}

	if c.Telemetry.MQTT != nil {
		if err := c.Telemetry.MQTT.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.ScannerConfig(DeviceConfig{Recorders: scanner.DefaultRecorders}).Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (d DeviceConfig) Validate() error {
	if d.Name == "" {
		return errors.New("app.DeviceConfig: name is required")
	}
	if len(d.Ranges) == 0 {
		return fmt.Errorf("app.DeviceConfig: device %s has no ranges", d.Name)
	}

	var err error
	switch d.Driver {
	case DriverRTLSDR:
		if d.RTL == nil {
			return fmt.Errorf("app.DeviceConfig: device %s has no rtl section", d.Name)
		}
		err = errors.Join(d.RTL.Validate(), rtl.ValidateSampleRate(d.SampleRate))
	case DriverHackRF:
		if d.HackRF == nil {
			return fmt.Errorf("app.DeviceConfig: device %s has no hackrf section", d.Name)
		}
		err = errors.Join(d.HackRF.Validate(), hackrf.ValidateSampleRate(d.SampleRate))
	default:
		return fmt.Errorf("app.DeviceConfig: unknown driver %q for device %s", d.Driver, d.Name)
	}
	if err != nil {
		return fmt.Errorf("app.DeviceConfig: device %s: %w", d.Name, err)
	}

	if d.Recorders < 0 {
		return fmt.Errorf("app.DeviceConfig: device %s recorders must not be negative: %d", d.Name, d.Recorders)
	}
	return nil
}

// ScannerConfig builds the scanner configuration of a device
func (c *Config) ScannerConfig(d DeviceConfig) scanner.Config {
	return scanner.Config{
		Detection: detection.Config{
			GroupSize:             c.Detection.GroupSize,
			RecordingBandwidth:    c.Recording.Bandwidth,
			SignalMatchMargin:     c.Detection.SignalMatchMargin,
			NoiseDetectionMargin:  c.Detection.NoiseDetectionMargin,
			NoiseLearningSamples:  c.Detection.NoiseLearningSamples,
			MaxSilenceTime:        c.Detection.MaxSilenceTime.Std(),
			MaxRecordingNoiseTime: c.Detection.MaxRecordingNoiseTime.Std(),
			MinRecordingTime:      c.Recording.MinTime.Std(),
			TornLearningTime:      c.Detection.TornLearningTime.Std(),
			TornMaxAllowedChanges: c.Detection.TornMaxAllowedChanges,
			Ignored:               c.IgnoredRanges,
		},
		Recording: recorder.Config{
			Bandwidth:      c.Recording.Bandwidth,
			Workers:        c.Recording.Workers,
			QueueSize:      c.Recording.QueueSize,
			MaxSilenceTime: c.Recording.MaxSilenceTime.Std(),
		},
		AveragerDepth:    c.Scanning.AveragerDepth,
		Recorders:        d.Recorders,
		OutputDir:        c.Recording.OutputDir,
		SnapshotInterval: c.Scanning.SnapshotInterval,
	}.WithDefaults()
}

// DeviceOptions returns the stream device options of a device
func (c *Config) DeviceOptions(d DeviceConfig) []func(*sdr.StreamDevice) {
	return []func(*sdr.StreamDevice){
		sdr.WithOffset(d.Offset),
		sdr.WithReadTime(c.Scanning.ScanningTime.Std()),
		sdr.WithBlockTime(c.Scanning.BlockTime.Std()),
		sdr.WithBufferTime(c.Scanning.BufferTime.Std()),
	}
}
