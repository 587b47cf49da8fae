package app

import (
	"math"
	"testing"
)

func TestPowerHistogram_Bounds(t *testing.T) {
	t.Run("too few readings", func(t *testing.T) {
		h := NewPowerHistogram()
		for range minimumSampleCount - 1 {
			h.Update(-50)
		}
		if got := h.Bounds(); got != defaultPowerBounds() {
			t.Errorf("Bounds() = %+v, want defaults", got)
		}
	})

	t.Run("NaN is skipped", func(t *testing.T) {
		h := NewPowerHistogram()
		h.Update(math.NaN())
		if h.Count() != 0 {
			t.Errorf("Count() = %d, want 0", h.Count())
		}
	})

	t.Run("percentiles", func(t *testing.T) {
		h := NewPowerHistogram()
		for i := range 100 {
			h.Update(float64(-100 + i)) // -100 .. -1 dB
		}

		got := h.Bounds()
		// 5th and 95th percentile bins are -95 and -6, padded by 10% of 89
		if got.Min != -103 || got.Max != 2 {
			t.Errorf("Bounds() = %+v, want Min -103 and Max 2", got)
		}
		if math.Abs(got.Mean+50.5) > 1e-9 {
			t.Errorf("Mean = %f, want -50.5", got.Mean)
		}
	})

	t.Run("minimum range", func(t *testing.T) {
		h := NewPowerHistogram()
		for range 50 {
			h.Update(-60.5)
		}

		got := h.Bounds()
		if got.Max-got.Min < minimumRange {
			t.Errorf("Bounds() = %+v, want at least %d dB", got, minimumRange)
		}
	})
}

func TestPowerBounds_Override(t *testing.T) {
	lo, hi := -80.0, -30.0
	b := PowerBounds{Min: -100, Max: 0}

	if got := b.Override(&lo, nil); got.Min != lo || got.Max != 0 {
		t.Errorf("Override(min) = %+v", got)
	}
	if got := b.Override(nil, &hi); got.Min != -100 || got.Max != hi {
		t.Errorf("Override(max) = %+v", got)
	}
}
