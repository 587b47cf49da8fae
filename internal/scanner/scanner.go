package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/detection"
	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/metrics"
	"github.com/roman-kulish/radio-scanner/internal/processor"
	"github.com/roman-kulish/radio-scanner/internal/recorder"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/sink"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
	"github.com/roman-kulish/radio-scanner/internal/storage"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

var (
	// ErrStreamEnded is returned when a stream that should run forever ends
	ErrStreamEnded = errors.New("stream ended unexpectedly")

	// ErrNotScanned is returned for a manual recording outside the scanned ranges
	ErrNotScanned = errors.New("frequency is not scanned")

	// ErrRequestPending is returned while an earlier manual recording request
	// is still waiting for its range to be read
	ErrRequestPending = errors.New("manual recording request pending")
)

// SinkFactory creates the sink of a new recording
type SinkFactory func(output spectrum.FrequencyRange, sampleRate spectrum.Frequency) (recorder.Sink, error)

// WithLogger sets the scanner logger
func WithLogger(logger *slog.Logger) func(s *Scanner) {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithPublisher sets the telemetry publisher
func WithPublisher(p telemetry.Publisher) func(s *Scanner) {
	return func(s *Scanner) {
		s.publisher = p
	}
}

// WithStore indexes finished recordings and stores snapshots in a session
func WithStore(store storage.Store, sessionID int64) func(s *Scanner) {
	return func(s *Scanner) {
		s.store, s.sessionID = store, sessionID
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) func(s *Scanner) {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// WithSinkFactory replaces the default WAV and telemetry sinks
func WithSinkFactory(fn SinkFactory) func(s *Scanner) {
	return func(s *Scanner) {
		s.newSink = fn
	}
}

// WithProcessorWorkers sets the number of PSD workers
func WithProcessorWorkers(n int) func(s *Scanner) {
	return func(s *Scanner) {
		s.workers = n
	}
}

type rangeState struct {
	averager *dsp.Averager
	detector *detection.TransmissionDetector
}

type activeRecording struct {
	input    spectrum.FrequencyRange
	recorder *recorder.Recorder
	until    time.Time // manual recordings are kept active until then
}

func (r *activeRecording) forced(t time.Time) bool {
	return t.Before(r.until)
}

type manualRequest struct {
	frequency spectrum.Frequency
	duration  time.Duration
}

// Scanner runs the read, process, detect and record loop of one device.
// It is not safe for concurrent use.
type Scanner struct {
	device sdr.Device
	ranges []spectrum.FrequencyRange
	config Config

	processor *processor.SamplesProcessor
	workers   int
	states    map[spectrum.FrequencyRange]*rangeState

	recordings map[spectrum.FrequencyRange]*activeRecording // by recorded range
	ignored    map[spectrum.FrequencyRange]struct{}
	newSink    SinkFactory

	manual  chan manualRequest
	pending *manualRequest

	publisher telemetry.Publisher
	store     storage.Store
	sessionID int64
	metrics   *metrics.Metrics
	spectra   int

	logger *slog.Logger
}

func New(device sdr.Device, ranges []spectrum.FrequencyRange, config Config, options ...func(s *Scanner)) (*Scanner, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, errors.New("no frequency ranges to scan")
	}
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid range %s: %w", r, err)
		}
	}

	s := &Scanner{
		device:     device,
		ranges:     ranges,
		config:     config,
		states:     make(map[spectrum.FrequencyRange]*rangeState),
		recordings: make(map[spectrum.FrequencyRange]*activeRecording),
		ignored:    make(map[spectrum.FrequencyRange]struct{}),
		manual:     make(chan manualRequest, 1),
		publisher:  telemetry.Discard{},
		metrics:    metrics.New(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}

	s.logger = s.logger.With(slog.String("component", "scanner"), slog.String("device", device.Name()))
	if s.newSink == nil {
		s.newSink = s.defaultSink
	}

	procOptions := []func(p *processor.SamplesProcessor){
		processor.WithLogger(s.logger),
		processor.WithDurationObserver(s.metrics.PSDObserver(device.Name())),
	}
	if s.workers > 0 {
		procOptions = append(procOptions, processor.WithWorkers(s.workers))
	}
	s.processor = processor.New(procOptions...)

	for _, r := range ranges {
		s.logger.Info("frequency range", slog.String("range", r.String()))
	}

	return s, nil
}

// Run scans until the context is cancelled. Device errors restart the scan
// after an exponential backoff.
func (s *Scanner) Run(ctx context.Context) error {
	defer s.processor.Close()

	delay := s.config.RetryInterval
	for {
		started := time.Now()
		err := s.scan(ctx)
		s.closeRecordings()

		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) > s.config.MaxRetryInterval {
			delay = s.config.RetryInterval
		}

		s.metrics.ScanError(s.device.Name())
		s.logger.Error("scan failed, restarting", slog.Any("error", err), slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(2*delay, s.config.MaxRetryInterval)
	}
}

func (s *Scanner) scan(ctx context.Context) error {
	if len(s.ranges) == 1 {
		return s.stream(ctx, s.ranges[0], true)
	}

	for {
		for _, r := range s.ranges {
			if err := ctx.Err(); err != nil {
				return err
			}

			block, err := s.device.ReadData(ctx, r)
			if err != nil {
				return fmt.Errorf("reading %s: %w", r, err)
			}

			inProgress, err := s.HandleBlock(ctx, block)
			if err != nil {
				return err
			}
			if inProgress {
				if err = s.stream(ctx, r, false); err != nil {
					return err
				}
			}
		}
	}
}

// stream feeds blocks of r until no recording of r is left, or forever.
func (s *Scanner) stream(ctx context.Context, r spectrum.FrequencyRange, forever bool) error {
	s.logger.Info("start stream", slog.String("range", r.String()), slog.Bool("forever", forever))

	blocks, err := s.device.StartStream(ctx, r)
	if err != nil {
		return fmt.Errorf("starting stream %s: %w", r, err)
	}

	var handleErr error
	for block := range blocks {
		inProgress, err := s.HandleBlock(ctx, block)
		if err != nil {
			handleErr = err
			break
		}
		if !forever && !inProgress {
			break
		}
	}

	err = errors.Join(handleErr, s.device.Stop())
	s.logger.Info("stop stream", slog.String("range", r.String()))

	switch {
	case err != nil:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case forever:
		return ErrStreamEnded
	}
	return nil
}

// HandleBlock runs one block through the pipeline and reports whether a
// recording of the block range is in progress.
func (s *Scanner) HandleBlock(ctx context.Context, block sdr.Block) (bool, error) {
	signals, err := s.processor.Process(ctx, block, s.device.Offset())
	if err != nil {
		return false, fmt.Errorf("processing samples: %w", err)
	}

	state, err := s.state(block.Range)
	if err != nil {
		return false, err
	}

	powers := make([]spectrum.Power, len(signals))
	for i, signal := range signals {
		powers[i] = signal.Power
	}
	state.averager.Push(powers)

	var transmissions []spectrum.Transmission
	if state.averager.Ready() {
		averaged := state.averager.Average()
		for i := range signals {
			signals[i].Power = averaged[i]
		}

		s.publishSpectrogram(ctx, spectrum.Spectrogram{Time: block.Time, Range: block.Range, Signals: signals})
		transmissions = state.detector.GetTransmissions(block.Time, signals)
	}

	return s.record(ctx, block, transmissions)
}

func (s *Scanner) state(r spectrum.FrequencyRange) (*rangeState, error) {
	if state, ok := s.states[r]; ok {
		return state, nil
	}

	averager, err := dsp.NewAverager(r.FFTSize(), s.config.AveragerDepth)
	if err != nil {
		return nil, err
	}
	detector, err := detection.NewTransmissionDetector(s.config.Detection, time.Now(),
		detection.WithLogger(s.logger.With(slog.String("range", r.String()))))
	if err != nil {
		return nil, err
	}

	state := &rangeState{averager: averager, detector: detector}
	s.states[r] = state
	return state, nil
}

func (s *Scanner) publishSpectrogram(ctx context.Context, spectrogram spectrum.Spectrogram) {
	s.publisher.PublishSpectrogram(s.device.Name(), spectrogram)

	if s.store == nil || s.config.SnapshotInterval == 0 {
		return
	}

	s.spectra++
	if s.spectra%s.config.SnapshotInterval != 0 {
		return
	}
	if err := s.store.StoreSpectrograms(ctx, s.sessionID, spectrogram); err != nil {
		s.logger.Error("error storing spectrogram snapshot", slog.Any("error", err))
	}
}

// record feeds the block to the recorders of its range, starts recorders for
// new active transmissions, strongest first, and closes finished ones.
func (s *Scanner) record(ctx context.Context, block sdr.Block, transmissions []spectrum.Transmission) (bool, error) {
	s.startManualRecording(block)

	slices.SortStableFunc(transmissions, func(a, b spectrum.Transmission) int {
		switch {
		case a.Power > b.Power:
			return -1
		case a.Power < b.Power:
			return 1
		}
		return 0
	})

	fed := make(map[spectrum.FrequencyRange]bool, len(transmissions))
	seen := make(map[spectrum.FrequencyRange]struct{}, len(transmissions))

	for _, t := range transmissions {
		seen[t.Range] = struct{}{}

		rec, ok := s.recordings[t.Range]
		if ok && rec.input != block.Range {
			continue
		}
		if !ok {
			if !t.Active {
				continue
			}
			if rec, ok = s.startRecording(block.Range, block.Time, t); !ok {
				continue
			}
		}

		if err := rec.recorder.AppendSamples(ctx, block.Time, block.Samples, t.Active || rec.forced(block.Time)); err != nil {
			return false, fmt.Errorf("recording %s: %w", t.Range, err)
		}
		fed[t.Range] = true
	}

	for output := range s.ignored {
		if _, ok := seen[output]; !ok && block.Range.Contains(output.Center()) {
			delete(s.ignored, output)
		}
	}

	inProgress := false
	for output, rec := range s.recordings {
		if rec.input != block.Range {
			continue
		}

		if !fed[output] {
			if err := rec.recorder.AppendSamples(ctx, block.Time, block.Samples, rec.forced(block.Time)); err != nil {
				return false, fmt.Errorf("recording %s: %w", output, err)
			}
		}

		if rec.recorder.IsFinished(block.Time) {
			s.stopRecording(output, rec)
			continue
		}
		inProgress = true
	}

	s.metrics.SetActiveTransmissions(s.device.Name(), len(s.recordings))
	return inProgress, nil
}

func (s *Scanner) startRecording(input spectrum.FrequencyRange, now time.Time, t spectrum.Transmission) (*activeRecording, bool) {
	if len(s.recordings) >= s.config.Recorders {
		if _, ok := s.ignored[t.Range]; !ok {
			s.ignored[t.Range] = struct{}{}
			s.metrics.TransmissionIgnored(s.device.Name())
			s.logger.Info("no free recorder, ignoring transmission",
				slog.String("frequency", t.Range.Center().String()),
				slog.Float64("power", float64(t.Power)))
		}
		return nil, false
	}

	factor := input.SampleRate / s.config.Recording.Bandwidth
	if factor < 1 {
		s.logger.Error("recording bandwidth exceeds the sample rate", slog.String("range", input.String()))
		return nil, false
	}

	out, err := s.newSink(t.Range, input.SampleRate/factor)
	if err != nil {
		s.logger.Error("error creating recording sink", slog.Any("error", err))
		return nil, false
	}

	rec, err := recorder.New(s.config.Recording, input, t.Range, out, now,
		recorder.WithLogger(s.logger.With(slog.String("frequency", t.Range.Center().String()))),
		recorder.WithDurationObserver(s.metrics.DecimationObserver(s.device.Name())))
	if err != nil {
		_ = out.Close()
		s.logger.Error("error creating recorder", slog.Any("error", err))
		return nil, false
	}

	s.logger.Info("start recording",
		slog.String("frequency", t.Range.Center().String()),
		slog.Float64("power", float64(t.Power)))

	r := &activeRecording{input: input, recorder: rec}
	s.recordings[t.Range] = r
	return r, true
}

// RequestRecording asks the scan loop to record frequency for d whether or
// not a transmission is detected there. The recording starts the next time
// the range holding frequency is read. It is safe for concurrent use.
func (s *Scanner) RequestRecording(frequency spectrum.Frequency, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("manual recording duration must be positive: %s", d)
	}
	if _, ok := s.manualInput(frequency); !ok {
		return fmt.Errorf("%w: %s", ErrNotScanned, frequency)
	}

	select {
	case s.manual <- manualRequest{frequency: frequency, duration: d}:
		return nil
	default:
		return ErrRequestPending
	}
}

// manualInput returns the first scanned range holding the whole recording
// bandwidth around frequency.
func (s *Scanner) manualInput(frequency spectrum.Frequency) (spectrum.FrequencyRange, bool) {
	half := s.config.Recording.Bandwidth / 2
	for _, r := range s.ranges {
		if r.Start <= frequency-half && frequency+half <= r.Stop {
			return r, true
		}
	}
	return spectrum.FrequencyRange{}, false
}

// startManualRecording starts the pending manual recording once a block of
// its range arrives. A request for a frequency already being recorded
// extends that recording.
func (s *Scanner) startManualRecording(block sdr.Block) {
	if s.pending == nil {
		select {
		case req := <-s.manual:
			s.pending = &req
		default:
			return
		}
	}

	input, _ := s.manualInput(s.pending.frequency)
	if input != block.Range {
		return
	}

	req := *s.pending
	s.pending = nil

	half := s.config.Recording.Bandwidth / 2
	output := spectrum.FrequencyRange{
		Start:      req.frequency - half,
		Stop:       req.frequency + half,
		Step:       input.Step,
		SampleRate: s.config.Recording.Bandwidth,
	}
	until := block.Time.Add(req.duration)

	if rec, ok := s.recordings[output]; ok {
		rec.until = until
		return
	}
	if len(s.recordings) >= s.config.Recorders {
		s.logger.Warn("no free recorder, manual recording dropped", slog.String("frequency", req.frequency.String()))
		return
	}

	rec, ok := s.startRecording(input, block.Time, spectrum.Transmission{Range: output, Active: true})
	if !ok {
		return
	}
	rec.until = until

	s.metrics.ManualRecording(s.device.Name())
	s.logger.Info("manual recording",
		slog.String("frequency", req.frequency.String()),
		slog.Duration("duration", req.duration))
}

// Ranges returns the ranges scanned by the scanner
func (s *Scanner) Ranges() []spectrum.FrequencyRange {
	return slices.Clone(s.ranges)
}

// Name returns the name of the scanned device
func (s *Scanner) Name() string {
	return s.device.Name()
}

func (s *Scanner) stopRecording(output spectrum.FrequencyRange, rec *activeRecording) {
	delete(s.recordings, output)

	summary, err := rec.recorder.Close()
	if err != nil {
		s.logger.Error("error closing recorder", slog.String("frequency", output.Center().String()), slog.Any("error", err))
		return
	}

	s.logger.Info("stop recording",
		slog.String("frequency", output.Center().String()),
		slog.Duration("duration", summary.Duration()))
}

func (s *Scanner) closeRecordings() {
	for output, rec := range s.recordings {
		s.stopRecording(output, rec)
	}
	s.metrics.SetActiveTransmissions(s.device.Name(), 0)
}

// Recordings returns the number of recordings in progress
func (s *Scanner) Recordings() int {
	return len(s.recordings)
}

func (s *Scanner) defaultSink(output spectrum.FrequencyRange, sampleRate spectrum.Frequency) (recorder.Sink, error) {
	sinks := []sink.Writer{telemetry.NewTransmissionSink(s.publisher, s.device.Name(), output)}

	if s.config.OutputDir != "" {
		wav := sink.NewWavSink(s.config.OutputDir, output, sampleRate, s.config.Detection.MinRecordingTime,
			sink.WithLogger(s.logger),
			sink.WithFinishHandler(s.onRecordingFinished))
		sinks = append(sinks, wav)
	}

	return sink.Tee(sinks...), nil
}

func (s *Scanner) onRecordingFinished(r sink.Recording) {
	s.metrics.RecordingFinished(s.device.Name())
	s.logger.Info("recording saved", slog.String("path", r.Path), slog.Duration("duration", r.Duration))

	if s.store == nil {
		return
	}

	_, err := s.store.StoreRecording(context.Background(), s.sessionID, &storage.Recording{
		UUID:       r.ID,
		Path:       r.Path,
		Frequency:  r.Range.Center(),
		Bandwidth:  r.Range.SampleRate,
		SampleRate: r.SampleRate,
		Start:      r.Start,
		Stop:       r.Stop,
		Duration:   r.Duration,
	})
	if err != nil {
		s.logger.Error("error indexing recording", slog.Any("error", err))
	}
}
