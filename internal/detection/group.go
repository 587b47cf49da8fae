package detection

import (
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

type observation struct {
	time      time.Time
	frequency spectrum.Frequency
}

// FrequencyGroup is a cluster of nearby strong-signal frequencies. Its
// frequency is the majority vote over the observations of the last window.
type FrequencyGroup struct {
	id int

	firstSignal time.Time
	lastSignal  time.Time
	power       spectrum.Power

	window       time.Duration
	observations []observation
	votes        map[spectrum.Frequency]int
	majority     spectrum.Frequency
}

func newFrequencyGroup(id int, window time.Duration, t time.Time, f spectrum.Frequency) *FrequencyGroup {
	g := &FrequencyGroup{
		id:          id,
		firstSignal: t,
		lastSignal:  t,
		window:      window,
		votes:       make(map[spectrum.Frequency]int),
		majority:    f,
	}
	g.Push(t, f)
	return g
}

func (g *FrequencyGroup) ID() int                       { return g.id }
func (g *FrequencyGroup) Frequency() spectrum.Frequency { return g.majority }
func (g *FrequencyGroup) FirstSignal() time.Time        { return g.firstSignal }
func (g *FrequencyGroup) LastSignal() time.Time         { return g.lastSignal }

// Push records an observation of frequency f at time t and drops the
// observations that fell out of the window.
func (g *FrequencyGroup) Push(t time.Time, f spectrum.Frequency) {
	g.observations = append(g.observations, observation{t, f})
	g.votes[f]++
	if t.After(g.lastSignal) {
		g.lastSignal = t
	}

	cutoff := g.lastSignal.Add(-g.window)
	drop := 0
	for drop < len(g.observations)-1 && g.observations[drop].time.Before(cutoff) {
		old := g.observations[drop].frequency
		if g.votes[old]--; g.votes[old] == 0 {
			delete(g.votes, old)
		}
		drop++
	}
	g.observations = g.observations[drop:]

	g.majority = majority(g.votes, g.majority)
}

// majority returns the most voted frequency. Ties keep current, or else go to
// the lowest frequency.
func majority(votes map[spectrum.Frequency]int, current spectrum.Frequency) spectrum.Frequency {
	top := 0
	for _, count := range votes {
		top = max(top, count)
	}
	if votes[current] == top {
		return current
	}

	var (
		winner spectrum.Frequency
		found  bool
	)
	for freq, count := range votes {
		if count == top && (!found || freq < winner) {
			winner, found = freq, true
		}
	}
	return winner
}

// Matches reports whether f lies within margin of the majority frequency.
func (g *FrequencyGroup) Matches(f, margin spectrum.Frequency) bool {
	d := f - g.majority
	if d < 0 {
		d = -d
	}
	return d <= margin
}

// Expired reports whether the group has been silent for longer than timeout.
func (g *FrequencyGroup) Expired(t time.Time, timeout time.Duration) bool {
	return t.After(g.lastSignal.Add(timeout))
}
