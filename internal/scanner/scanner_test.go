package scanner

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/detection"
	"github.com/roman-kulish/radio-scanner/internal/recorder"
	"github.com/roman-kulish/radio-scanner/internal/sdr"
	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	blockSamples  = 25_600 // 100 ms at 256 ksps
	blockDuration = 100 * time.Millisecond
	toneOffset    = 50_000
)

var (
	rangeA = spectrum.FrequencyRange{Start: 1_000_000, Stop: 1_256_000, Step: 2_000, SampleRate: 256_000}
	rangeB = spectrum.FrequencyRange{Start: 1_256_000, Stop: 1_512_000, Step: 2_000, SampleRate: 256_000}
)

type generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newGenerator() *generator {
	return &generator{rng: rand.New(rand.NewPCG(1, 2))}
}

// samples returns complex noise, with a strong tone 50 kHz above the center
// when tone is set.
func (g *generator) samples(tone bool) []complex64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]complex64, blockSamples)
	for i := range out {
		v := complex(0.01*g.rng.NormFloat64(), 0.01*g.rng.NormFloat64())
		if tone {
			phase := 2 * math.Pi * toneOffset * float64(i) / float64(rangeA.SampleRate)
			v += complex(0.5*math.Cos(phase), 0.5*math.Sin(phase))
		}
		out[i] = complex64(v)
	}
	return out
}

type fakeDevice struct {
	gen   *generator
	start time.Time
	tone  func(r spectrum.FrequencyRange, n int) bool

	mu       sync.Mutex
	n        int // blocks produced
	readErrs int
	reads    int
	streams  []spectrum.FrequencyRange
	stop     chan struct{}
	done     chan struct{}
}

func newFakeDevice(tone func(r spectrum.FrequencyRange, n int) bool) *fakeDevice {
	return &fakeDevice{gen: newGenerator(), start: time.Now(), tone: tone}
}

func (d *fakeDevice) Name() string               { return "fake" }
func (d *fakeDevice) Offset() spectrum.Frequency { return 0 }

func (d *fakeDevice) next(r spectrum.FrequencyRange) sdr.Block {
	d.mu.Lock()
	n := d.n
	d.n++
	d.mu.Unlock()

	return sdr.Block{
		Time:    d.start.Add(time.Duration(n) * blockDuration),
		Range:   r,
		Samples: d.gen.samples(d.tone(r, n)),
	}
}

func (d *fakeDevice) ReadData(_ context.Context, r spectrum.FrequencyRange) (sdr.Block, error) {
	d.mu.Lock()
	d.reads++
	if d.readErrs > 0 {
		d.readErrs--
		d.mu.Unlock()
		return sdr.Block{}, errors.New("usb transfer error")
	}
	d.mu.Unlock()

	return d.next(r), nil
}

func (d *fakeDevice) StartStream(ctx context.Context, r spectrum.FrequencyRange) (<-chan sdr.Block, error) {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return nil, sdr.ErrAlreadyStreaming
	}
	d.streams = append(d.streams, r)
	stop, done := make(chan struct{}), make(chan struct{})
	d.stop, d.done = stop, done
	d.mu.Unlock()

	out := make(chan sdr.Block)
	go func() {
		defer close(done)
		defer close(out)
		for {
			select {
			case out <- d.next(r):
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (d *fakeDevice) Streams() []spectrum.FrequencyRange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]spectrum.FrequencyRange(nil), d.streams...)
}

type fakeSink struct {
	output spectrum.FrequencyRange
	rate   spectrum.Frequency

	mu      sync.Mutex
	samples int
	closed  chan struct{}
}

func (s *fakeSink) Write(_ time.Time, samples []complex64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples += len(samples)
	return nil
}

func (s *fakeSink) Close() error {
	close(s.closed)
	return nil
}

func (s *fakeSink) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

type sinks struct {
	mu    sync.Mutex
	sinks []*fakeSink
	ready chan *fakeSink
}

func newSinks() *sinks {
	return &sinks{ready: make(chan *fakeSink, 16)}
}

func (f *sinks) factory(output spectrum.FrequencyRange, rate spectrum.Frequency) (recorder.Sink, error) {
	s := &fakeSink{output: output, rate: rate, closed: make(chan struct{})}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
	f.ready <- s
	return s, nil
}

func testConfig() Config {
	return Config{
		Detection: detection.Config{
			NoiseLearningSamples:  3,
			MaxSilenceTime:        300 * time.Millisecond,
			MaxRecordingNoiseTime: 300 * time.Millisecond,
			MinRecordingTime:      100 * time.Millisecond,
		},
		Recording:        recorder.Config{Workers: 2},
		AveragerDepth:    1,
		RetryInterval:    10 * time.Millisecond,
		MaxRetryInterval: 20 * time.Millisecond,
	}
}

func newTestScanner(t *testing.T, device sdr.Device, ranges []spectrum.FrequencyRange, config Config, f *sinks) *Scanner {
	t.Helper()
	s, err := New(device, ranges, config, WithSinkFactory(f.factory), WithProcessorWorkers(2))
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return s
}

func waitSink(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for the sink")
	}
}

func TestScanner_HandleBlock(t *testing.T) {
	// noise for 3 blocks, tone for 5 blocks, noise after
	device := newFakeDevice(func(_ spectrum.FrequencyRange, n int) bool { return n >= 3 && n < 8 })
	f := newSinks()
	s := newTestScanner(t, device, []spectrum.FrequencyRange{rangeA}, testConfig(), f)
	defer s.processor.Close()

	ctx := context.Background()
	var history []bool
	for range 16 {
		inProgress, err := s.HandleBlock(ctx, device.next(rangeA))
		if err != nil {
			t.Fatalf("HandleBlock() unexpected error: %v", err)
		}
		history = append(history, inProgress)
	}

	want := []bool{
		false, false, false, // noise learning
		true, true, true, true, true, // tone
		true, true, true, // silence within the max silence time
		false, false, false, false, false,
	}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("in progress after block %d = %v, want %v (history %v)", i, history[i], want[i], history)
		}
	}

	if len(f.sinks) != 1 {
		t.Fatalf("created %d sinks, want 1", len(f.sinks))
	}
	got := f.sinks[0]
	waitSink(t, got.closed)

	if got.output.Center() != 1_177_500 {
		t.Errorf("recorded center = %d, want 1177500", got.output.Center())
	}
	if got.rate != 32_000 {
		t.Errorf("sink rate = %d, want 32000", got.rate)
	}
	// five tone blocks decimated by 8
	if want := 5 * blockSamples / 8; got.Samples() != want {
		t.Errorf("sink received %d samples, want %d", got.Samples(), want)
	}
	if s.Recordings() != 0 {
		t.Errorf("Recordings() = %d, want 0", s.Recordings())
	}
}

func TestScanner_RecorderLimit(t *testing.T) {
	s := newTestScanner(t, newFakeDevice(func(spectrum.FrequencyRange, int) bool { return false }),
		[]spectrum.FrequencyRange{rangeA}, testConfig(), newSinks())
	defer s.processor.Close()

	now := time.Now()
	block := sdr.Block{Time: now, Range: rangeA, Samples: make([]complex64, blockSamples)}
	transmission := func(center spectrum.Frequency, power spectrum.Power) spectrum.Transmission {
		return spectrum.Transmission{
			Range:  spectrum.FrequencyRange{Start: center - 16_000, Stop: center + 16_000, Step: 2_000, SampleRate: 32_000},
			Active: true,
			Power:  power,
		}
	}

	weak := transmission(1_050_000, -40)
	strong := transmission(1_150_000, -20)

	if _, err := s.record(context.Background(), block, []spectrum.Transmission{weak, strong}); err != nil {
		t.Fatalf("record() unexpected error: %v", err)
	}
	if _, ok := s.recordings[strong.Range]; !ok || s.Recordings() != 1 {
		t.Fatalf("recordings = %v, want only the strongest transmission", s.recordings)
	}
	if _, ok := s.ignored[weak.Range]; !ok {
		t.Errorf("weak transmission not marked as ignored")
	}

	// the ignored mark is cleared once the transmission is gone
	block.Time = now.Add(blockDuration)
	if _, err := s.record(context.Background(), block, []spectrum.Transmission{strong}); err != nil {
		t.Fatalf("record() unexpected error: %v", err)
	}
	if _, ok := s.ignored[weak.Range]; ok {
		t.Errorf("weak transmission still marked as ignored")
	}

	s.closeRecordings()
	if s.Recordings() != 0 {
		t.Errorf("Recordings() = %d after closeRecordings, want 0", s.Recordings())
	}
}

func TestScanner_RunStream(t *testing.T) {
	device := newFakeDevice(func(_ spectrum.FrequencyRange, n int) bool { return n >= 3 && n < 8 })
	f := newSinks()
	s := newTestScanner(t, device, []spectrum.FrequencyRange{rangeA}, testConfig(), f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var sink *fakeSink
	select {
	case sink = <-f.ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("no recording started")
	}
	waitSink(t, sink.closed)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() unexpected error: %v", err)
	}
	if streams := device.Streams(); len(streams) != 1 || streams[0] != rangeA {
		t.Errorf("streams = %v, want a single stream of range A", streams)
	}
}

func TestScanner_RunCycle(t *testing.T) {
	// range B carries the tone from its 4th read on, every block of a stream
	// on B after the first 3 is noise again
	var (
		mu       sync.Mutex
		bReads   int
		bBlocks  int
		inStream bool
	)
	device := newFakeDevice(func(r spectrum.FrequencyRange, _ int) bool {
		mu.Lock()
		defer mu.Unlock()
		if r != rangeB {
			return false
		}
		if inStream {
			bBlocks++
			return bBlocks <= 3
		}
		bReads++
		if bReads == 4 {
			inStream = true
		}
		return bReads >= 4
	})
	f := newSinks()
	s := newTestScanner(t, device, []spectrum.FrequencyRange{rangeA, rangeB}, testConfig(), f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var sink *fakeSink
	select {
	case sink = <-f.ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("no recording started")
	}
	waitSink(t, sink.closed)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() unexpected error: %v", err)
	}

	if !rangeB.Contains(sink.output.Center()) {
		t.Errorf("recorded %v, want a range inside B", sink.output)
	}
	if streams := device.Streams(); len(streams) == 0 || streams[0] != rangeB {
		t.Errorf("streams = %v, want a stream of range B", streams)
	}
}

func TestScanner_RunRetries(t *testing.T) {
	device := newFakeDevice(func(spectrum.FrequencyRange, int) bool { return false })
	device.readErrs = 2

	s := newTestScanner(t, device, []spectrum.FrequencyRange{rangeA, rangeB}, testConfig(), newSinks())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Errorf("Run() unexpected error: %v", err)
	}

	device.mu.Lock()
	defer device.mu.Unlock()
	if device.reads < 3 {
		t.Errorf("reads = %d, want the scan restarted after errors", device.reads)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"bandwidth mismatch", Config{Recording: recorder.Config{Bandwidth: 16_000}}, true},
		{"negative snapshots", Config{SnapshotInterval: -1}, true},
		{"negative recorders", Config{Recorders: -1}, true},
		{"retry above max", Config{RetryInterval: time.Minute, MaxRetryInterval: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.WithDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(newFakeDevice(nil), nil, Config{}); err == nil {
		t.Errorf("New() without ranges expected error")
	}
}

func TestScanner_ManualRecording(t *testing.T) {
	device := newFakeDevice(func(spectrum.FrequencyRange, int) bool { return false })
	f := newSinks()
	s := newTestScanner(t, device, []spectrum.FrequencyRange{rangeA}, testConfig(), f)
	defer s.processor.Close()

	tests := []struct {
		name      string
		frequency spectrum.Frequency
		duration  time.Duration
		wantErr   error
	}{
		{"outside ranges", 5_000_000, time.Second, ErrNotScanned},
		{"bandwidth over the edge", 1_010_000, time.Second, ErrNotScanned},
		{"zero duration", 1_100_000, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RequestRecording(tt.frequency, tt.duration)
			if err == nil || (tt.wantErr != nil && !errors.Is(err, tt.wantErr)) {
				t.Errorf("RequestRecording() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := s.RequestRecording(1_100_000, 500*time.Millisecond); err != nil {
		t.Fatalf("RequestRecording() unexpected error: %v", err)
	}
	if err := s.RequestRecording(1_200_000, time.Second); !errors.Is(err, ErrRequestPending) {
		t.Errorf("second RequestRecording() error = %v, want ErrRequestPending", err)
	}

	ctx := context.Background()
	var history []bool
	for range 10 {
		inProgress, err := s.HandleBlock(ctx, device.next(rangeA))
		if err != nil {
			t.Fatalf("HandleBlock() unexpected error: %v", err)
		}
		history = append(history, inProgress)
	}

	// 500 ms forced, then the max silence time
	want := []bool{true, true, true, true, true, true, true, true, false, false}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("in progress after block %d = %v, want %v (history %v)", i, history[i], want[i], history)
		}
	}

	if len(f.sinks) != 1 {
		t.Fatalf("created %d sinks, want 1", len(f.sinks))
	}
	got := f.sinks[0]
	waitSink(t, got.closed)

	if got.output.Center() != 1_100_000 || got.rate != 32_000 {
		t.Errorf("manual recording = %v at %d, want 1.1 MHz at 32000", got.output, got.rate)
	}
	if got.Samples() == 0 {
		t.Errorf("manual recording received no samples")
	}
}

func TestScanner_ManualRecordingOtherRange(t *testing.T) {
	device := newFakeDevice(func(spectrum.FrequencyRange, int) bool { return false })
	f := newSinks()
	s := newTestScanner(t, device, []spectrum.FrequencyRange{rangeA, rangeB}, testConfig(), f)

	if err := s.RequestRecording(1_400_000, 300*time.Millisecond); err != nil {
		t.Fatalf("RequestRecording() unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var sink *fakeSink
	select {
	case sink = <-f.ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("no manual recording started")
	}
	waitSink(t, sink.closed)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() unexpected error: %v", err)
	}

	if sink.output.Center() != 1_400_000 {
		t.Errorf("recorded %v, want 1.4 MHz", sink.output)
	}
	if streams := device.Streams(); len(streams) == 0 || streams[0] != rangeB {
		t.Errorf("streams = %v, want a stream of range B", streams)
	}
}
