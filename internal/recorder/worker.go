package recorder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// workerInput is a block of raw samples tuned to the input range. first is
// the stream index of samples[0] and history holds the raw samples right
// before it.
type workerInput struct {
	seq     uint64
	time    time.Time
	first   int64
	history []complex64
	samples []complex64
	active  bool
}

// workerOutput is a block of baseband samples at the output rate.
type workerOutput struct {
	seq     uint64
	time    time.Time
	samples []complex64
	active  bool
}

// Worker moves the output range to baseband and decimates it. Every worker
// keeps its own shifter and decimator.
type Worker struct {
	id     int
	input  spectrum.FrequencyRange
	output spectrum.FrequencyRange
	factor int

	shifter   *dsp.Shifter
	decimator *dsp.Decimator
	buffer    []complex64

	observer prometheus.Observer
	logger   *slog.Logger
}

func newWorker(id int, input, output spectrum.FrequencyRange, factor int, observer prometheus.Observer, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		input:    input,
		output:   output,
		factor:   factor,
		shifter:  dsp.NewShifter(input.Center()-output.Center(), input.SampleRate),
		observer: observer,
		logger:   logger.With(slog.Int("worker", id)),
	}
}

func (w *Worker) run(in <-chan workerInput, out chan<- workerOutput) {
	w.logger.Debug("worker started", slog.String("frequency", w.output.Center().String()))
	defer w.logger.Debug("worker stopped")

	for input := range in {
		output, err := w.process(input)
		if err != nil {
			w.logger.Error("error decimating samples", slog.Any("error", err))
			output = workerOutput{seq: input.seq, time: input.time, active: input.active}
		}
		out <- output
	}
}

func (w *Worker) process(input workerInput) (workerOutput, error) {
	start := time.Now()

	if w.decimator == nil {
		d, err := dsp.NewDecimator(w.factor)
		if err != nil {
			return workerOutput{}, fmt.Errorf("error creating decimator: %w", err)
		}
		w.decimator = d
	}

	n := len(input.history) + len(input.samples)
	if cap(w.buffer) < n {
		w.buffer = make([]complex64, n)
	}
	buffer := w.buffer[:n]
	copy(buffer, input.history)
	copy(buffer[len(input.history):], input.samples)

	w.shifter.ShiftAt(buffer, input.first-int64(len(input.history)))
	w.decimator.Seek(buffer[:len(input.history)], input.first)

	samples := make([]complex64, w.decimator.OutputSize(len(input.samples)))
	samples = samples[:w.decimator.Decimate(buffer[len(input.history):], samples)]

	if w.observer != nil {
		w.observer.Observe(time.Since(start).Seconds())
	}

	return workerOutput{
		seq:     input.seq,
		time:    input.time,
		samples: samples,
		active:  input.active,
	}, nil
}
