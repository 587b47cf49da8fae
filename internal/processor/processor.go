package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

var ErrClosed = errors.New("processor closed")

// WithLogger sets the processor logger
func WithLogger(logger *slog.Logger) func(p *SamplesProcessor) {
	return func(p *SamplesProcessor) {
		p.logger = logger.With(slog.String("component", "processor"))
	}
}

// WithWorkers sets the number of PSD workers, runtime.NumCPU by default
func WithWorkers(n int) func(p *SamplesProcessor) {
	return func(p *SamplesProcessor) {
		if n > 0 {
			p.workersCount = n
		}
	}
}

// WithDurationObserver records the processing time of every block
func WithDurationObserver(o prometheus.Observer) func(p *SamplesProcessor) {
	return func(p *SamplesProcessor) {
		p.observer = o
	}
}

// SamplesProcessor splits a block into one shard per worker, computes the
// PSD of the shards in parallel and averages them per bin.
type SamplesProcessor struct {
	workersCount int
	jobs         chan job
	wg           sync.WaitGroup

	mu     sync.Mutex
	closed bool

	observer prometheus.Observer
	logger   *slog.Logger
}

func New(options ...func(p *SamplesProcessor)) *SamplesProcessor {
	p := &SamplesProcessor{
		workersCount: runtime.NumCPU(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(p)
	}

	p.jobs = make(chan job, p.workersCount)
	for i := range p.workersCount {
		w := newWorker(i, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(p.jobs)
		}()
	}

	return p
}

// Process shifts the block samples in place by offset and returns the
// averaged power spectrum of the block. Shards shorter than one FFT are not
// used, so short blocks are processed by fewer workers.
func (p *SamplesProcessor) Process(ctx context.Context, block sdr.Block, offset spectrum.Frequency) ([]spectrum.Signal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	start := time.Now()

	fftSize := dsp.FFTSize(block.Range)
	shards := min(p.workersCount, len(block.Samples)/fftSize)
	if shards == 0 {
		return nil, fmt.Errorf("block of %d samples is shorter than FFT size %d", len(block.Samples), fftSize)
	}

	results := make(chan result, shards)
	size := len(block.Samples) / shards

	sent := 0
	for i := range shards {
		lo, hi := i*size, (i+1)*size
		if i == shards-1 {
			hi = len(block.Samples)
		}

		j := job{
			r:       block.Range,
			samples: block.Samples[lo:hi],
			first:   lo,
			offset:  offset,
			results: results,
		}

		select {
		case p.jobs <- j:
			sent++
		case <-ctx.Done():
			p.drain(results, sent)
			return nil, ctx.Err()
		}
	}

	var (
		sum  []float64
		bins []spectrum.Signal
		errs []error
	)
	for range sent {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if sum == nil {
			sum = make([]float64, len(r.signals))
			bins = r.signals
		}
		for i, s := range r.signals {
			sum[i] += float64(s.Power)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("error computing spectrum: %w", err)
	}

	count := float64(sent - len(errs))
	for i := range bins {
		bins[i].Power = spectrum.Power(sum[i] / count)
	}

	if p.observer != nil {
		p.observer.Observe(time.Since(start).Seconds())
	}
	return bins, nil
}

// drain waits for the jobs already handed to workers so they no longer touch
// the block.
func (p *SamplesProcessor) drain(results <-chan result, n int) {
	for range n {
		<-results
	}
}

// Close stops the workers. Process returns ErrClosed afterwards.
func (p *SamplesProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.jobs)
	p.wg.Wait()
	return nil
}
