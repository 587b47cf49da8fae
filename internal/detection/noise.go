package detection

import (
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

type noiseRecord struct {
	samplesCount int
	samplesSum   float64
	noiseLevel   spectrum.Power
}

// NoiseLearner keeps a per-bin noise floor. Each bin accumulates powers while
// it is outside any transmission, and every samplesThreshold observations the
// level becomes their mean plus the detection margin and the accumulator
// restarts. A bin with no learned level is never strong.
type NoiseLearner struct {
	margin           spectrum.Power
	samplesThreshold int

	frequencies []spectrum.Frequency // ascending, parallel to records
	records     []noiseRecord

	logger *slog.Logger
}

func NewNoiseLearner(margin spectrum.Power, samplesThreshold int, logger *slog.Logger) *NoiseLearner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &NoiseLearner{
		margin:           margin,
		samplesThreshold: max(samplesThreshold, 1),
		logger:           logger,
	}
}

func (n *NoiseLearner) matches(signals []spectrum.Signal) bool {
	return slices.EqualFunc(n.frequencies, signals, func(f spectrum.Frequency, s spectrum.Signal) bool {
		return f == s.Frequency
	})
}

func (n *NoiseLearner) reset(signals []spectrum.Signal) {
	n.frequencies = make([]spectrum.Frequency, len(signals))
	n.records = make([]noiseRecord, len(signals))
	for i, s := range signals {
		n.frequencies[i] = s.Frequency
		n.records[i].noiseLevel = spectrum.Power(math.Inf(1))
	}
}

// Update accumulates the powers of bins outside every transmission range. The
// records are rebuilt if the frequency axis differs from the learned one.
func (n *NoiseLearner) Update(signals []spectrum.Signal, transmissions []spectrum.Transmission) {
	if !n.matches(signals) {
		if len(n.frequencies) > 0 {
			n.logger.Info("frequency axis changed, noise learning restarted", slog.Int("bins", len(signals)))
		}
		n.reset(signals)
	}

	for i, s := range signals {
		if inTransmission(transmissions, s.Frequency) {
			continue
		}

		r := &n.records[i]
		r.samplesSum += float64(s.Power)
		r.samplesCount++

		if r.samplesCount >= n.samplesThreshold {
			r.noiseLevel = spectrum.Power(r.samplesSum/float64(r.samplesCount)) + n.margin
			r.samplesSum = 0
			r.samplesCount = 0
		}
	}
}

// GetStrongSignals returns the signals at or above their bin's noise level. An
// axis that does not match the learned one yields no signals, as does a learner
// that has not seen any axis yet.
func (n *NoiseLearner) GetStrongSignals(signals []spectrum.Signal) []spectrum.Signal {
	if len(n.frequencies) == 0 {
		return []spectrum.Signal{} // warming up
	}
	if !n.matches(signals) {
		n.logger.Warn("frequency axis mismatch, skipping detection",
			slog.Int("signals", len(signals)),
			slog.Int("noiseBins", len(n.frequencies)))
		return []spectrum.Signal{}
	}

	var strong []spectrum.Signal
	for i, s := range signals {
		if n.records[i].noiseLevel <= s.Power {
			strong = append(strong, s)
		}
	}
	return strong
}

// NoiseLevel returns the learned level at f and whether f is a known bin.
func (n *NoiseLearner) NoiseLevel(f spectrum.Frequency) (spectrum.Power, bool) {
	i, ok := slices.BinarySearch(n.frequencies, f)
	if !ok {
		return 0, false
	}
	return n.records[i].noiseLevel, true
}

func inTransmission(transmissions []spectrum.Transmission, f spectrum.Frequency) bool {
	for _, t := range transmissions {
		if t.Range.Contains(f) {
			return true
		}
	}
	return false
}
