package spectrum

import "fmt"

// Fit splits a user band into tunable ranges whose bandwidth equals the device
// sample rate. A band narrower than one span is centered in a single range.
func Fit(band Range, sampleRate, step Frequency) ([]FrequencyRange, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 || step <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d and step %d must be positive", ErrInvalidRange, sampleRate, step)
	}

	width := band.Stop - band.Start
	if width <= sampleRate {
		center := band.Start + width/2
		r := FrequencyRange{
			Start:      center - sampleRate/2,
			Stop:       center + sampleRate/2,
			Step:       step,
			SampleRate: sampleRate,
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return []FrequencyRange{r}, nil
	}

	var ranges []FrequencyRange
	for start := band.Start; start < band.Stop; start += sampleRate {
		r := FrequencyRange{
			Start:      start,
			Stop:       start + sampleRate,
			Step:       step,
			SampleRate: sampleRate,
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	return ranges, nil
}

// FitAll fits every band and concatenates the results in order.
func FitAll(bands []Range, sampleRate, step Frequency) ([]FrequencyRange, error) {
	var ranges []FrequencyRange
	for _, band := range bands {
		fitted, err := Fit(band, sampleRate, step)
		if err != nil {
			return nil, fmt.Errorf("fitting %s: %w", band, err)
		}
		ranges = append(ranges, fitted...)
	}
	return ranges, nil
}

// IsIgnored reports whether f falls inside any of the ignored bands.
func IsIgnored(ignored []Range, f Frequency) bool {
	for _, r := range ignored {
		if r.Contains(f) {
			return true
		}
	}
	return false
}
