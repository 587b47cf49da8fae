package detection

import (
	"math"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// TornSignalsDetector counts, per group range, how many cycles a group was
// observed during a learning window. Counts of the previous window are
// served while the next one is being collected.
type TornSignalsDetector struct {
	learningTime time.Duration
	lastUpdate   time.Time
	initialized  bool

	counts  map[spectrum.FrequencyRange]int
	pending map[spectrum.FrequencyRange]int
}

func NewTornSignalsDetector(learningTime time.Duration, now time.Time) *TornSignalsDetector {
	return &TornSignalsDetector{
		learningTime: learningTime,
		lastUpdate:   now,
		counts:       make(map[spectrum.FrequencyRange]int),
		pending:      make(map[spectrum.FrequencyRange]int),
	}
}

// Update swaps the learning window once it has elapsed.
func (d *TornSignalsDetector) Update(now time.Time) {
	if d.lastUpdate.Add(d.learningTime).After(now) {
		return
	}

	d.counts, d.pending = d.pending, make(map[spectrum.FrequencyRange]int)
	d.lastUpdate = now
	d.initialized = true
}

func (d *TornSignalsDetector) ReportSignal(r spectrum.FrequencyRange) {
	d.pending[r]++
}

// SignalTransmissionsCount returns the count learned in the last window, or
// math.MaxInt before the first window completed.
func (d *TornSignalsDetector) SignalTransmissionsCount(r spectrum.FrequencyRange) int {
	if !d.initialized {
		return math.MaxInt
	}
	return d.counts[r]
}

type tornRecord struct {
	count int
	total time.Duration
}

// TornTransmissionDetector learns the average duration of the transmissions
// seen on each range. Ranges whose transmissions are on average shorter than
// the minimum recording time are rejected.
type TornTransmissionDetector struct {
	learningTime     time.Duration
	minRecordingTime time.Duration
	lastUpdate       time.Time
	initialized      bool

	averages map[spectrum.FrequencyRange]time.Duration
	pending  map[spectrum.FrequencyRange]tornRecord
}

func NewTornTransmissionDetector(learningTime, minRecordingTime time.Duration, now time.Time) *TornTransmissionDetector {
	return &TornTransmissionDetector{
		learningTime:     learningTime,
		minRecordingTime: minRecordingTime,
		lastUpdate:       now,
		averages:         make(map[spectrum.FrequencyRange]time.Duration),
		pending:          make(map[spectrum.FrequencyRange]tornRecord),
	}
}

func (d *TornTransmissionDetector) Update(now time.Time) {
	if d.lastUpdate.Add(d.learningTime).After(now) {
		return
	}

	averages := make(map[spectrum.FrequencyRange]time.Duration, len(d.pending))
	for r, rec := range d.pending {
		averages[r] = rec.total / time.Duration(rec.count)
	}

	d.averages = averages
	d.pending = make(map[spectrum.FrequencyRange]tornRecord)
	d.lastUpdate = now
	d.initialized = true
}

func (d *TornTransmissionDetector) ReportTransmission(r spectrum.FrequencyRange, duration time.Duration) {
	rec := d.pending[r]
	rec.count++
	rec.total += duration
	d.pending[r] = rec
}

// IsTransmissionOk accepts everything until the first window completed, and
// ranges with no history in the last window.
func (d *TornTransmissionDetector) IsTransmissionOk(r spectrum.FrequencyRange) bool {
	if !d.initialized {
		return true
	}

	avg, ok := d.averages[r]
	if !ok {
		return true
	}
	return avg >= d.minRecordingTime
}
