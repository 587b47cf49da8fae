package detection

import (
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	axisStart spectrum.Frequency = 145_400_000
	axisStep  spectrum.Frequency = 2_000
)

// axis returns a flat spectrum of 100 bins with the given peaks on top.
func axis(power spectrum.Power, peaks map[spectrum.Frequency]spectrum.Power) []spectrum.Signal {
	signals := make([]spectrum.Signal, 100)
	for i := range signals {
		f := axisStart + spectrum.Frequency(i)*axisStep
		signals[i] = spectrum.Signal{Frequency: f, Power: power}
		if p, ok := peaks[f]; ok {
			signals[i].Power = p
		}
	}
	return signals
}

func newTestDetector(t *testing.T, config Config, now time.Time) *TransmissionDetector {
	t.Helper()

	config.NoiseLearningSamples = 2
	d, err := NewTransmissionDetector(config, now)
	if err != nil {
		t.Fatalf("NewTransmissionDetector() unexpected error: %v", err)
	}

	// learn a -54 dB floor
	d.GetTransmissions(now, axis(-60, nil))
	d.GetTransmissions(now.Add(time.Second), axis(-60, nil))
	return d
}

func TestTransmissionDetector_Lifecycle(t *testing.T) {
	start := time.Now()
	d := newTestDetector(t, Config{}, start)

	t2 := start.Add(2 * time.Second)
	got := d.GetTransmissions(t2, axis(-60, map[spectrum.Frequency]spectrum.Power{145_500_000: -30}))
	if len(got) != 1 {
		t.Fatalf("GetTransmissions() = %v, want one transmission", got)
	}

	want := spectrum.FrequencyRange{Start: 145_484_000, Stop: 145_516_000, Step: axisStep, SampleRate: 32_000}
	if got[0].Range != want {
		t.Errorf("transmission range = %v, want %v", got[0].Range, want)
	}
	if !got[0].Active || got[0].Power != -30 {
		t.Errorf("transmission = %+v, want active at -30 dB", got[0])
	}

	got = d.GetTransmissions(t2.Add(time.Second), axis(-60, nil))
	if len(got) != 1 || got[0].Active {
		t.Fatalf("GetTransmissions() during silence = %+v, want one inactive", got)
	}

	got = d.GetTransmissions(t2.Add(2*time.Second), axis(-60, nil))
	if len(got) != 0 {
		t.Errorf("GetTransmissions() after timeout = %+v, want none", got)
	}
	if d.Groups() != 0 {
		t.Errorf("Groups() = %d after timeout, want 0", d.Groups())
	}
}

func TestTransmissionDetector_NeighborMerge(t *testing.T) {
	start := time.Now()
	d := newTestDetector(t, Config{SignalMatchMargin: 500}, start)

	t2 := start.Add(2 * time.Second)
	d.GetTransmissions(t2, axis(-60, map[spectrum.Frequency]spectrum.Power{145_500_000: -30}))

	got := d.GetTransmissions(t2.Add(time.Second), axis(-60, map[spectrum.Frequency]spectrum.Power{145_502_000: -35}))
	if len(got) != 1 {
		t.Fatalf("GetTransmissions() = %+v, want the drifted signal merged", got)
	}
	if got[0].Range.Center() != 145_500_000 || !got[0].Active || got[0].Power != -35 {
		t.Errorf("transmission = %+v, want active at 145.5 MHz with -35 dB", got[0])
	}
}

func TestTransmissionDetector_Ignored(t *testing.T) {
	start := time.Now()
	d := newTestDetector(t, Config{
		Ignored: []spectrum.Range{{Start: 145_490_000, Stop: 145_510_000}},
	}, start)

	got := d.GetTransmissions(start.Add(2*time.Second), axis(-60, map[spectrum.Frequency]spectrum.Power{
		145_500_000: -30,
		145_560_000: -40,
	}))
	if len(got) != 1 || got[0].Range.Center() != 145_560_000 {
		t.Errorf("GetTransmissions() = %+v, want only 145.56 MHz", got)
	}
}

func TestTransmissionDetector_OtherRangeKept(t *testing.T) {
	start := time.Now()
	d := newTestDetector(t, Config{}, start)

	t2 := start.Add(2 * time.Second)
	d.GetTransmissions(t2, axis(-60, map[spectrum.Frequency]spectrum.Power{145_500_000: -30}))

	other := make([]spectrum.Signal, 10)
	for i := range other {
		other[i] = spectrum.Signal{Frequency: 433_000_000 + spectrum.Frequency(i)*axisStep, Power: -60}
	}
	if got := d.GetTransmissions(t2.Add(10*time.Second), other); len(got) != 0 {
		t.Errorf("GetTransmissions() on another range = %+v, want none", got)
	}
	if d.Groups() != 1 {
		t.Errorf("Groups() = %d, want the 145.5 MHz group kept", d.Groups())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", Config{}.WithDefaults(), false},
		{"zero group", Config{GroupSize: -1}.WithDefaults(), true},
		{"negative torn", Config{TornMaxAllowedChanges: -1}.WithDefaults(), true},
		{"bad ignored", Config{Ignored: []spectrum.Range{{Start: 10, Stop: 5}}}.WithDefaults(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGroupKey(t *testing.T) {
	for f, want := range map[spectrum.Frequency]spectrum.Frequency{
		145_500_000: 145_500_000,
		145_501_250: 145_500_000,
		145_501_251: 145_502_500,
		145_502_000: 145_502_500,
	} {
		if got := groupKey(f, 2_500); got != want {
			t.Errorf("groupKey(%d) = %d, want %d", f, got, want)
		}
	}
}

func TestTransmissionDetector_TornSuppression(t *testing.T) {
	const blip spectrum.Frequency = 145_500_000

	r := groupRange(blip, DefaultRecordingBandwidth, axisStep)

	tests := []struct {
		name             string
		minRecordingTime time.Duration
		reported         map[int]bool // blip start in ms since start
	}{
		{
			name:             "short blips suppressed",
			minRecordingTime: 2 * time.Second,
			reported:         map[int]bool{5000: true, 8000: true, 11000: true, 14000: false, 17000: false},
		},
		{
			name:             "long enough blips kept",
			minRecordingTime: time.Millisecond,
			reported:         map[int]bool{5000: true, 8000: true, 11000: true, 14000: true, 17000: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			d, err := NewTransmissionDetector(Config{
				NoiseLearningSamples:  8,
				MaxSilenceTime:        time.Second,
				MaxRecordingNoiseTime: time.Second,
				MinRecordingTime:      tt.minRecordingTime,
				TornLearningTime:      6 * time.Second,
			}, start)
			if err != nil {
				t.Fatalf("NewTransmissionDetector() unexpected error: %v", err)
			}

			// two cycle blips of 0.5s every 3s, after 4s of noise learning
			for ms := 0; ms <= 18_000; ms += 500 {
				now := start.Add(time.Duration(ms) * time.Millisecond)

				var peaks map[spectrum.Frequency]spectrum.Power
				if ms >= 5000 && (ms-5000)%3000 <= 500 {
					peaks = map[spectrum.Frequency]spectrum.Power{blip: -30}
				}

				got := d.GetTransmissions(now, axis(-60, peaks))

				want, ok := tt.reported[ms]
				if !ok {
					continue
				}
				if d.Groups() != 1 {
					t.Fatalf("t=%dms: Groups() = %d, want the blip tracked", ms, d.Groups())
				}
				if want && (len(got) != 1 || got[0].Range != r || !got[0].Active) {
					t.Errorf("t=%dms: GetTransmissions() = %+v, want active %v", ms, got, r)
				}
				if !want && len(got) != 0 {
					t.Errorf("t=%dms: GetTransmissions() = %+v, want the torn blip dropped", ms, got)
				}
			}

			// the blips that timed out in the last window were learned with their duration
			if avg := d.torn.averages[r]; avg != 500*time.Millisecond {
				t.Errorf("learned average duration = %s, want 500ms", avg)
			}
		})
	}
}
