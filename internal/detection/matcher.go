package detection

import (
	"math"
	"slices"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Match is the group a signal was assigned to.
type Match struct {
	GroupID   int
	Frequency spectrum.Frequency // Majority frequency of the group
}

// SignalsMatcher clusters strong signals into frequency groups whose identity
// survives small frequency drift. Groups silent for longer than the silence
// time are forgotten on the next read.
type SignalsMatcher struct {
	margin      spectrum.Frequency
	silenceTime time.Duration
	groupSize   spectrum.Frequency
	bandwidth   spectrum.Frequency
	maxAllowed  int

	groups []*FrequencyGroup
	nextID int
	torn   *TornSignalsDetector
}

func NewSignalsMatcher(config Config, now time.Time) *SignalsMatcher {
	return &SignalsMatcher{
		margin:      config.SignalMatchMargin,
		silenceTime: config.MaxSilenceTime,
		groupSize:   config.GroupSize,
		bandwidth:   config.RecordingBandwidth,
		maxAllowed:  config.TornMaxAllowedChanges,
		torn:        NewTornSignalsDetector(config.TornLearningTime, now),
	}
}

// UpdateSignals assigns each signal to the closest live group within margin,
// creating groups as needed. The returned matches are parallel to signals.
func (m *SignalsMatcher) UpdateSignals(t time.Time, signals []spectrum.Signal) []Match {
	m.torn.Update(t)

	matches := make([]Match, len(signals))
	seen := make(map[int]*FrequencyGroup)

	for i, s := range signals {
		g := m.closest(t, s.Frequency)
		if g == nil {
			m.nextID++
			g = newFrequencyGroup(m.nextID, m.silenceTime, t, s.Frequency)
			m.groups = append(m.groups, g)
		} else {
			g.Push(t, s.Frequency)
		}

		seen[g.id] = g
		matches[i] = Match{GroupID: g.id, Frequency: g.Frequency()}
	}

	for _, g := range seen {
		m.torn.ReportSignal(m.tornRange(g))
	}

	// majority may have moved after later pushes
	for i := range matches {
		matches[i].Frequency = seen[matches[i].GroupID].Frequency()
	}
	return matches
}

func (m *SignalsMatcher) closest(t time.Time, f spectrum.Frequency) *FrequencyGroup {
	var (
		best     *FrequencyGroup
		bestDist spectrum.Frequency = math.MaxInt64
	)
	for _, g := range m.groups {
		if g.Expired(t, m.silenceTime) || !g.Matches(f, m.margin) {
			continue
		}
		d := f - g.Frequency()
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = g, d
		}
	}
	return best
}

// GetStrongFrequencies returns, in ascending order, the majority frequency of
// every group heard within the silence time at t. Groups observed more often
// than allowed during the last learning window are left out.
func (m *SignalsMatcher) GetStrongFrequencies(t time.Time) []spectrum.Frequency {
	m.groups = slices.DeleteFunc(m.groups, func(g *FrequencyGroup) bool {
		return g.Expired(t, m.silenceTime)
	})

	frequencies := make([]spectrum.Frequency, 0, len(m.groups))
	for _, g := range m.groups {
		if m.isTorn(g) {
			continue
		}
		frequencies = append(frequencies, g.Frequency())
	}

	slices.Sort(frequencies)
	return slices.Compact(frequencies)
}

func (m *SignalsMatcher) isTorn(g *FrequencyGroup) bool {
	if m.maxAllowed <= 0 {
		return false
	}
	count := m.torn.SignalTransmissionsCount(m.tornRange(g))
	return count != math.MaxInt && count > m.maxAllowed
}

func (m *SignalsMatcher) tornRange(g *FrequencyGroup) spectrum.FrequencyRange {
	return groupRange(groupKey(g.Frequency(), m.groupSize), m.bandwidth, m.groupSize)
}

// Len returns the number of groups tracked, expired ones included until the
// next read.
func (m *SignalsMatcher) Len() int {
	return len(m.groups)
}
