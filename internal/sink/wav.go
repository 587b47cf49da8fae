package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	bitDepth       = 16
	wavFormatPCM   = 1
	fileNameLayout = "20060102_150405"
	amplitudeScale = math.MaxInt16
	dirPermissions = 0o755
	fileExtension  = ".wav"
)

// Recording describes a finalized audio file.
type Recording struct {
	ID         uuid.UUID
	Path       string
	Range      spectrum.FrequencyRange
	SampleRate spectrum.Frequency
	Start      time.Time
	Stop       time.Time
	Duration   time.Duration
}

// WithLogger sets the sink logger
func WithLogger(logger *slog.Logger) func(s *WavSink) {
	return func(s *WavSink) {
		s.logger = logger
	}
}

// WithFinishHandler is called for every recording kept on disk
func WithFinishHandler(fn func(Recording)) func(s *WavSink) {
	return func(s *WavSink) {
		s.onFinish = fn
	}
}

// WavSink FM demodulates baseband samples into a mono 16 bit WAV file. The
// file is created on the first write and removed on Close if the recording is
// shorter than the minimum duration.
type WavSink struct {
	dir         string
	minDuration time.Duration
	recording   Recording

	file    *os.File
	encoder *wav.Encoder
	demod   *dsp.FMDemodulator
	audio   []float32
	buffer  *audio.IntBuffer
	samples int

	onFinish func(Recording)
	logger   *slog.Logger
}

func NewWavSink(dir string, r spectrum.FrequencyRange, sampleRate spectrum.Frequency, minDuration time.Duration, options ...func(s *WavSink)) *WavSink {
	s := &WavSink{
		dir:         dir,
		minDuration: minDuration,
		recording: Recording{
			ID:         uuid.New(),
			Range:      r,
			SampleRate: sampleRate,
		},
		demod: dsp.NewFMDemodulator(),
		buffer: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
			SourceBitDepth: bitDepth,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Path returns the file path, empty until the first write.
func (s *WavSink) Path() string {
	return s.recording.Path
}

func (s *WavSink) open(t time.Time) error {
	day := filepath.Join(s.dir, t.Format("2006-01-02"))
	if err := os.MkdirAll(day, dirPermissions); err != nil {
		return fmt.Errorf("error creating recordings directory: %w", err)
	}

	name := fmt.Sprintf("%s_%d_%s%s", t.Format(fileNameLayout), s.recording.Range.Center(), s.recording.ID, fileExtension)
	path := filepath.Join(day, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating recording file: %w", err)
	}

	s.file = f
	s.encoder = wav.NewEncoder(f, int(s.recording.SampleRate), bitDepth, 1, wavFormatPCM)
	s.recording.Path = path
	s.recording.Start = t

	s.logger.Debug("recording file created", slog.String("path", path))
	return nil
}

func (s *WavSink) Write(t time.Time, samples []complex64) error {
	if s.file == nil {
		if err := s.open(t); err != nil {
			return err
		}
	}

	if cap(s.audio) < len(samples) {
		s.audio = make([]float32, len(samples))
	}
	n := s.demod.Demodulate(samples, s.audio[:len(samples)])

	if cap(s.buffer.Data) < n {
		s.buffer.Data = make([]int, n)
	}
	s.buffer.Data = s.buffer.Data[:n]
	for i, v := range s.audio[:n] {
		s.buffer.Data[i] = int(max(-1, min(1, v)) * amplitudeScale)
	}

	if err := s.encoder.Write(s.buffer); err != nil {
		return fmt.Errorf("error encoding audio: %w", err)
	}

	s.samples += n
	s.recording.Stop = t
	return nil
}

// Close finalizes the file. Recordings shorter than the minimum duration are
// deleted and not reported to the finish handler.
func (s *WavSink) Close() error {
	if s.file == nil {
		return nil
	}

	err := errors.Join(s.encoder.Close(), s.file.Close())
	s.recording.Duration = time.Duration(int64(s.samples) * int64(time.Second) / int64(s.recording.SampleRate))

	if err != nil || s.recording.Duration < s.minDuration {
		s.logger.Debug("recording discarded",
			slog.String("path", s.recording.Path),
			slog.Duration("duration", s.recording.Duration))
		return errors.Join(err, os.Remove(s.recording.Path))
	}

	s.logger.Info("recording saved",
		slog.String("path", s.recording.Path),
		slog.Duration("duration", s.recording.Duration))

	if s.onFinish != nil {
		s.onFinish(s.recording)
	}
	return nil
}
