package processor

import (
	"log/slog"

	"github.com/roman-kulish/radio-scanner/internal/dsp"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// job is one shard of a block. samples is a view into the block, shifted in
// place, and first is the index of its first sample within the block.
type job struct {
	r       spectrum.FrequencyRange
	samples []complex64
	first   int
	offset  spectrum.Frequency
	results chan<- result
}

type result struct {
	signals []spectrum.Signal
	err     error
}

// Worker computes the PSD of shards. Each worker owns its FFT plans and shift
// table.
type Worker struct {
	id          int
	spectrogram *dsp.Spectrogram
	shifter     *dsp.Shifter
	shiftRate   spectrum.Frequency

	logger *slog.Logger
}

func newWorker(id int, logger *slog.Logger) *Worker {
	return &Worker{
		id:          id,
		spectrogram: dsp.NewSpectrogram(),
		logger:      logger.With(slog.Int("worker", id)),
	}
}

func (w *Worker) run(jobs <-chan job) {
	w.logger.Debug("worker started")
	defer w.logger.Debug("worker stopped")

	for j := range jobs {
		j.results <- w.process(j)
	}
}

func (w *Worker) process(j job) result {
	if j.offset != 0 {
		w.shift(j)
	}

	signals, err := w.spectrogram.PSD(j.r, j.samples)
	return result{signals: signals, err: err}
}

// shift moves the shard by the device offset, continuing the rotation of the
// shards before it.
func (w *Worker) shift(j job) {
	if w.shifter == nil || w.shifter.Offset() != j.offset || w.shiftRate != j.r.SampleRate {
		w.shifter = dsp.NewShifter(j.offset, j.r.SampleRate)
		w.shiftRate = j.r.SampleRate
	}
	w.shifter.ShiftAt(j.samples, int64(j.first))
}
