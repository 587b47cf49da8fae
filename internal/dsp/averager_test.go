package dsp

import (
	"math"
	"testing"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

func approxEqual(a, b spectrum.Power) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestNewAverager_Invalid(t *testing.T) {
	if _, err := NewAverager(0, 3); err == nil {
		t.Errorf("NewAverager(0, 3) expected error")
	}
	if _, err := NewAverager(3, 0); err == nil {
		t.Errorf("NewAverager(3, 0) expected error")
	}
}

func TestAverager_NoDataUntilFull(t *testing.T) {
	a, err := NewAverager(3, 4)
	if err != nil {
		t.Fatalf("Failed to create averager: %v", err)
	}

	for k := 1; k < 4; k++ {
		a.Push([]spectrum.Power{-10, -20, -30})
		for i, p := range a.Average() {
			if p != NoData {
				t.Fatalf("after %d pushes bin %d = %v, want NoData", k, i, p)
			}
		}
		if a.Ready() {
			t.Fatalf("Ready() = true after %d pushes", k)
		}
	}
}

func TestAverager_MovingMean(t *testing.T) {
	const groupSize = 3

	a, err := NewAverager(2, groupSize)
	if err != nil {
		t.Fatalf("Failed to create averager: %v", err)
	}

	pushed := [][]spectrum.Power{
		{-60, -10},
		{-50, -20},
		{-40, -30},
		{-70, -40},
		{-80, -50},
	}

	for k, v := range pushed {
		a.Push(v)
		if k+1 < groupSize {
			continue
		}

		window := pushed[k+1-groupSize : k+1]
		average := a.Average()
		for bin := 0; bin < 2; bin++ {
			var sum spectrum.Power
			for _, w := range window {
				sum += w[bin]
			}
			if want := sum / groupSize; !approxEqual(average[bin], want) {
				t.Errorf("push %d bin %d average = %v, want %v", k, bin, average[bin], want)
			}
		}

		data := a.Data()
		if len(data) != groupSize {
			t.Fatalf("Data() length = %d, want %d", len(data), groupSize)
		}
		for i, w := range window {
			for bin := range w {
				if data[i][bin] != w[bin] {
					t.Errorf("Data()[%d][%d] = %v, want %v", i, bin, data[i][bin], w[bin])
				}
			}
		}
	}
}

func TestAverager_Reset(t *testing.T) {
	a, err := NewAverager(1, 2)
	if err != nil {
		t.Fatalf("Failed to create averager: %v", err)
	}

	a.Push([]spectrum.Power{-10})
	a.Push([]spectrum.Power{-20})
	a.Reset()

	if a.Ready() {
		t.Errorf("Ready() = true after Reset")
	}
	if len(a.Data()) != 0 {
		t.Errorf("Data() length = %d after Reset, want 0", len(a.Data()))
	}

	a.Push([]spectrum.Power{-30})
	a.Push([]spectrum.Power{-40})
	if got := a.Average()[0]; !approxEqual(got, -35) {
		t.Errorf("Average() = %v after Reset, want -35", got)
	}
}
