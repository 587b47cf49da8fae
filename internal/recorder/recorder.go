package recorder

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

var ErrClosed = errors.New("recorder closed")

// Sink receives the baseband samples of one transmission in time order.
type Sink interface {
	Write(t time.Time, samples []complex64) error
	Close() error
}

// Summary describes what a recorder wrote to its sink.
type Summary struct {
	Range      spectrum.FrequencyRange
	SampleRate spectrum.Frequency
	Start      time.Time // Time of the first written block
	Stop       time.Time // Time of the last written block
	Samples    int
}

func (s Summary) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(s.Samples) * int64(time.Second) / int64(s.SampleRate))
}

// WithLogger sets the recorder logger
func WithLogger(logger *slog.Logger) func(r *Recorder) {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithDurationObserver records the decimation time of every block
func WithDurationObserver(o prometheus.Observer) func(r *Recorder) {
	return func(r *Recorder) {
		r.observer = o
	}
}

// Recorder records one transmission. Blocks appended by the scanner are
// shifted and decimated by a worker pool, put back in order and written to the
// sink. Blocks without the transmission are held back until the next active
// block, so the start of a transmission is kept and trailing silence is not.
type Recorder struct {
	config Config
	input  spectrum.FrequencyRange
	output spectrum.FrequencyRange
	factor int
	sink   Sink

	in   chan workerInput
	out  chan workerOutput
	wg   sync.WaitGroup
	done chan struct{}

	// dispatcher side
	mu         sync.Mutex
	closed     bool
	seq        uint64
	position   int64
	history    []complex64
	lastActive time.Time

	// flusher side
	queue    outputQueue
	next     uint64
	held     []workerOutput
	heldSize int
	summary  Summary
	err      error

	observer prometheus.Observer
	logger   *slog.Logger
}

// New starts a recorder of output from a device tuned to input. now is the
// detection time of the transmission.
func New(config Config, input, output spectrum.FrequencyRange, sink Sink, now time.Time, options ...func(r *Recorder)) (*Recorder, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !input.Contains(output.Center()) {
		return nil, fmt.Errorf("recording %s is outside of %s", output, input)
	}

	factor := int(input.SampleRate / config.Bandwidth)
	if factor < 1 {
		return nil, fmt.Errorf("sample rate %d is lower than recording bandwidth %d", input.SampleRate, config.Bandwidth)
	}

	r := &Recorder{
		config:     config,
		input:      input,
		output:     output,
		factor:     factor,
		sink:       sink,
		in:         make(chan workerInput, config.QueueSize),
		out:        make(chan workerOutput, config.QueueSize),
		done:       make(chan struct{}),
		lastActive: now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(r)
	}
	r.logger = r.logger.With(slog.String("component", "recorder"), slog.String("frequency", output.Center().String()))
	r.summary = Summary{Range: output, SampleRate: r.SampleRate()}

	for i := range config.Workers {
		w := newWorker(i, input, output, factor, r.observer, r.logger)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			w.run(r.in, r.out)
		}()
	}
	go r.flush()

	r.logger.Info("recording started",
		slog.Int("decimation", factor),
		slog.Int("workers", config.Workers))

	return r, nil
}

// Range returns the recorded range.
func (r *Recorder) Range() spectrum.FrequencyRange {
	return r.output
}

// SampleRate returns the rate of the samples written to the sink.
func (r *Recorder) SampleRate() spectrum.Frequency {
	return r.input.SampleRate / spectrum.Frequency(r.factor)
}

// AppendSamples queues a block read at t. active tells whether the
// transmission was detected in the block. It blocks while the input queue is
// full.
func (r *Recorder) AppendSamples(ctx context.Context, t time.Time, samples []complex64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if active {
		r.lastActive = t
	}

	input := workerInput{
		seq:     r.seq,
		time:    t,
		first:   r.position,
		history: r.history,
		samples: append([]complex64(nil), samples...),
		active:  active,
	}

	select {
	case r.in <- input:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.seq++
	r.position += int64(len(samples))
	r.history = tail(r.history, input.samples, dsp.HistorySize(r.factor))
	return nil
}

// tail returns the last n samples of history followed by samples, in a new
// slice.
func tail(history, samples []complex64, n int) []complex64 {
	if len(samples) >= n {
		return append([]complex64(nil), samples[len(samples)-n:]...)
	}
	keep := min(len(history), n-len(samples))
	joined := make([]complex64, 0, keep+len(samples))
	joined = append(joined, history[len(history)-keep:]...)
	return append(joined, samples...)
}

// IsFinished reports whether no active block arrived within the max silence
// time before now.
func (r *Recorder) IsFinished(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.After(r.lastActive.Add(r.config.MaxSilenceTime))
}

func (r *Recorder) flush() {
	defer close(r.done)

	for output := range r.out {
		heap.Push(&r.queue, output)
		for r.queue.Len() > 0 && r.queue[0].seq == r.next {
			r.handle(heap.Pop(&r.queue).(workerOutput))
			r.next++
		}
	}

	if r.heldSize > 0 {
		r.logger.Debug("trailing silence dropped", slog.Int("samples", r.heldSize))
	}
}

func (r *Recorder) handle(output workerOutput) {
	if !output.active {
		r.held = append(r.held, output)
		r.heldSize += len(output.samples)

		// keep at most the max silence time of pre-roll
		limit := int(int64(r.SampleRate()) * int64(r.config.MaxSilenceTime) / int64(time.Second))
		for len(r.held) > 1 && r.heldSize-len(r.held[0].samples) >= limit {
			r.heldSize -= len(r.held[0].samples)
			r.held = r.held[1:]
		}
		return
	}

	for _, held := range r.held {
		r.write(held)
	}
	r.held = r.held[:0]
	r.heldSize = 0
	r.write(output)
}

func (r *Recorder) write(output workerOutput) {
	if r.err != nil || len(output.samples) == 0 {
		return
	}

	if err := r.sink.Write(output.time, output.samples); err != nil {
		r.err = fmt.Errorf("error writing samples: %w", err)
		r.logger.Error("error writing samples", slog.Any("error", err))
		return
	}

	if r.summary.Samples == 0 {
		r.summary.Start = output.time
	}
	r.summary.Stop = output.time
	r.summary.Samples += len(output.samples)
}

// Close waits for the queued blocks to be written and closes the sink.
func (r *Recorder) Close() (Summary, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Summary{}, ErrClosed
	}
	r.closed = true
	close(r.in)
	r.mu.Unlock()

	r.wg.Wait()
	close(r.out)
	<-r.done

	err := errors.Join(r.err, r.sink.Close())

	r.logger.Info("recording finished",
		slog.Duration("duration", r.summary.Duration()),
		slog.Int("samples", r.summary.Samples))

	return r.summary, err
}
