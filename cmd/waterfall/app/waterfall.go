package app

import (
	"math"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Waterfall is the pixel grid of a rendered session. Each row holds the
// snapshots of one pass over the scanned ranges, so cycling scanners fill a
// row with several ranges before a new row starts.
type Waterfall struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   spectrum.Frequency
	Step                         spectrum.Frequency
	TimestampStart, TimestampEnd time.Time
	Histogram                    *PowerHistogram
	Rows                         [][]float32 // NaN where no snapshot covered the pixel
	Times                        []time.Time // First snapshot time of each row
}

// NewWaterfall sizes the grid from the frequency span and the bin step. Bins
// outside [minFreq, maxFreq] are cropped.
func NewWaterfall(minFreq, maxFreq, step spectrum.Frequency) *Waterfall {
	return &Waterfall{
		Width:        int((maxFreq-minFreq)/step) + 1,
		FrequencyMin: minFreq,
		FrequencyMax: maxFreq,
		Step:         step,
		Histogram:    NewPowerHistogram(),
	}
}

// column maps a frequency onto the grid, false when it falls outside
func (w *Waterfall) column(f spectrum.Frequency) (int, bool) {
	if f < w.FrequencyMin || f > w.FrequencyMax {
		return 0, false
	}
	return int((f - w.FrequencyMin) / w.Step), true
}

func (w *Waterfall) newRow(t time.Time) []float32 {
	row := make([]float32, w.Width)
	for i := range row {
		row[i] = float32(math.NaN())
	}
	w.Rows = append(w.Rows, row)
	w.Times = append(w.Times, t)
	w.Height++
	return row
}

// Update paints one snapshot. A snapshot that overlaps pixels already painted
// in the current row starts a new row.
func (w *Waterfall) Update(s *spectrum.Spectrogram) {
	if len(s.Signals) == 0 {
		return
	}

	if w.TimestampStart.IsZero() || s.Time.Before(w.TimestampStart) {
		w.TimestampStart = s.Time
	}
	if s.Time.After(w.TimestampEnd) {
		w.TimestampEnd = s.Time
	}

	var row []float32
	if w.Height > 0 {
		row = w.Rows[w.Height-1]
		for _, signal := range s.Signals {
			if x, ok := w.column(signal.Frequency); ok && !math.IsNaN(float64(row[x])) {
				row = nil
				break
			}
		}
	}
	if row == nil {
		row = w.newRow(s.Time)
	}

	for _, signal := range s.Signals {
		x, ok := w.column(signal.Frequency)
		if !ok {
			continue
		}
		row[x] = float32(signal.Power)
		w.Histogram.Update(float64(signal.Power))
	}
}
