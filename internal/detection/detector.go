package detection

import (
	"cmp"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// TransmissionDetector turns power spectra into transmissions. It is safe for
// concurrent use.
type TransmissionDetector struct {
	mu sync.Mutex

	config  Config
	noise   *NoiseLearner
	matcher *SignalsMatcher
	torn    *TornTransmissionDetector
	groups  map[spectrum.Frequency]*FrequencyGroup // keyed by rounded frequency

	logger *slog.Logger
}

// WithLogger sets the logger of the detector and its learners
func WithLogger(logger *slog.Logger) func(d *TransmissionDetector) {
	return func(d *TransmissionDetector) {
		d.logger = logger.With(slog.String("component", "detector"))
	}
}

func NewTransmissionDetector(config Config, now time.Time, options ...func(d *TransmissionDetector)) (*TransmissionDetector, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &TransmissionDetector{
		config: config,
		groups: make(map[spectrum.Frequency]*FrequencyGroup),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(d)
	}

	d.noise = NewNoiseLearner(config.NoiseDetectionMargin, config.NoiseLearningSamples, d.logger)
	d.matcher = NewSignalsMatcher(config, now)
	d.torn = NewTornTransmissionDetector(config.TornLearningTime, config.MinRecordingTime, now)

	return d, nil
}

// GetTransmissions runs one detection cycle over an averaged spectrum taken
// at t. Only the groups falling inside the spectrum are reported, groups of
// other ranges keep their state until that range is scanned again.
func (d *TransmissionDetector) GetTransmissions(t time.Time, signals []spectrum.Signal) []spectrum.Transmission {
	if len(signals) < 2 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.torn.Update(t)
	step := signals[1].Frequency - signals[0].Frequency

	strong := d.noise.GetStrongSignals(signals)
	slices.SortStableFunc(strong, func(a, b spectrum.Signal) int {
		return cmp.Compare(b.Power, a.Power)
	})
	strong = slices.DeleteFunc(strong, func(s spectrum.Signal) bool {
		return spectrum.IsIgnored(d.config.Ignored, s.Frequency)
	})

	matches := d.matcher.UpdateSignals(t, strong)
	live := d.matcher.GetStrongFrequencies(t)

	for i, m := range matches {
		if _, ok := slices.BinarySearch(live, m.Frequency); !ok {
			continue
		}
		d.push(t, groupKey(m.Frequency, d.config.GroupSize), strong[i], step)
	}

	front := groupKey(signals[0].Frequency, d.config.GroupSize)
	back := groupKey(signals[len(signals)-1].Frequency, d.config.GroupSize)

	keys := make([]spectrum.Frequency, 0, len(d.groups))
	for key := range d.groups {
		if key >= front && key <= back {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	var transmissions []spectrum.Transmission
	for _, key := range keys {
		g := d.groups[key]
		r := groupRange(key, d.config.RecordingBandwidth, step)

		if d.timedOut(g, t) {
			d.torn.ReportTransmission(r, g.LastSignal().Sub(g.FirstSignal()))
			delete(d.groups, key)
			d.logger.Debug("transmission ended", slog.String("range", r.String()))
			continue
		}

		if !d.torn.IsTransmissionOk(r) {
			d.logger.Debug("torn transmission skipped", slog.String("range", r.String()))
			continue
		}

		transmissions = append(transmissions, spectrum.Transmission{
			Range:  r,
			Active: g.LastSignal().Equal(t),
			Power:  g.power,
		})
	}

	d.noise.Update(signals, transmissions)
	return transmissions
}

// push records s on the group at key or on a neighbor up to two group widths
// away, creating a group at key when none exists.
func (d *TransmissionDetector) push(t time.Time, key spectrum.Frequency, s spectrum.Signal, step spectrum.Frequency) {
	size := d.config.GroupSize
	for _, k := range []spectrum.Frequency{key, key - size, key + size, key - 2*size, key + 2*size} {
		g, ok := d.groups[k]
		if !ok {
			continue
		}

		if d.timedOut(g, t) {
			// silent past the timeout but not swept yet, this is a new transmission
			r := groupRange(k, d.config.RecordingBandwidth, step)
			d.torn.ReportTransmission(r, g.LastSignal().Sub(g.FirstSignal()))
			g.firstSignal = t
		}

		if !g.LastSignal().Equal(t) || s.Power > g.power {
			g.power = s.Power
		}
		g.Push(t, s.Frequency)
		return
	}

	g := newFrequencyGroup(0, d.config.MaxRecordingNoiseTime, t, s.Frequency)
	g.power = s.Power
	d.groups[key] = g
	d.logger.Debug("transmission started", slog.String("frequency", key.String()))
}

func (d *TransmissionDetector) timedOut(g *FrequencyGroup, t time.Time) bool {
	return !g.LastSignal().Add(d.config.MaxRecordingNoiseTime).After(t)
}

// NoiseLevel returns the learned noise level at f.
func (d *TransmissionDetector) NoiseLevel(f spectrum.Frequency) (spectrum.Power, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.noise.NoiseLevel(f)
}

// Groups returns the number of tracked transmission groups.
func (d *TransmissionDetector) Groups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}
