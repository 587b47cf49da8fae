package app

import "math"

const (
	defaultMinPower = -100.0 // dB, the averager "no data" floor
	defaultMaxPower = 0.0

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumRange = 30 // dB
)

// PowerBounds represents the power range mapped onto the color theme
type PowerBounds struct {
	Min  float64 // 5th percentile power level in dB, less a margin
	Max  float64 // 95th percentile power level in dB, plus a margin
	Mean float64
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// Override replaces the bounds with the manual limits that are set
func (b PowerBounds) Override(minPower, maxPower *float64) PowerBounds {
	if minPower != nil {
		b.Min = *minPower
	}
	if maxPower != nil {
		b.Max = *maxPower
	}
	return b
}

// PowerHistogram counts power readings in 1 dB bins
type PowerHistogram struct {
	bins       map[int]uint32
	totalCount uint64
	minBin     int
	maxBin     int
}

func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func binIndex(power float64) int {
	return int(math.Floor(power))
}

// scaleDown halves every count, keeping the distribution shape
func (h *PowerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		if h.bins[bin] /= 2; h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}
		h.minBin = min(h.minBin, bin)
		h.maxBin = max(h.maxBin, bin)
	}
	h.totalCount /= 2
}

// Update adds a power reading. NaN marks a missing reading and is skipped.
func (h *PowerHistogram) Update(power float64) {
	if math.IsNaN(power) {
		return
	}

	bin := binIndex(power)
	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

// Bounds returns the 5th to 95th percentile range, widened to at least 30 dB
// and padded by 10% on both sides
func (h *PowerHistogram) Bounds() PowerBounds {
	if h.totalCount < minimumSampleCount {
		return defaultPowerBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	low, high := h.minBin, h.maxBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count > target {
			low = bin
			break
		}
	}

	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count > target {
			high = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += float64(bin) * float64(n)
	}
	mean := sum / float64(h.totalCount)

	if high-low < minimumRange {
		center := (high + low) / 2
		low = center - minimumRange/2
		high = center + minimumRange/2
	}

	margin := (high - low) / 10
	return PowerBounds{
		Min:  float64(low - margin),
		Max:  float64(high + margin),
		Mean: mean,
	}
}
