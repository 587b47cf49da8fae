package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

const (
	// DefaultReadTime is the capture length of a single ReadData call
	DefaultReadTime = 250 * time.Millisecond

	// DefaultBlockTime is the length of a single streamed block
	DefaultBlockTime = 100 * time.Millisecond

	// DefaultBufferTime is how much unread stream the ring buffer holds before
	// the oldest data is overwritten
	DefaultBufferTime = 2 * time.Second

	pollInterval  = 100 * time.Millisecond
	readChunkSize = 64 * 1024

	// exitGracePeriod bounds how long Stop waits for a tool that closed its
	// output to exit on its own
	exitGracePeriod = 2 * time.Second
)

var (
	// ErrAlreadyStreaming is returned when the device is busy with a stream
	ErrAlreadyStreaming = errors.New("device is already streaming")

	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrShortRead is returned when the capture tool exits before delivering
	// the requested number of samples
	ErrShortRead = errors.New("short read")
)

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *StreamDevice) {
	return func(d *StreamDevice) {
		d.logger = logger.With(
			slog.String("device", d.handler.Device()),
			slog.String("deviceID", d.deviceID),
		)
	}
}

// WithOffset sets the frequency offset of an up/down converter
func WithOffset(offset spectrum.Frequency) func(d *StreamDevice) {
	return func(d *StreamDevice) {
		d.offset = offset
	}
}

// WithReadTime sets the capture length of ReadData
func WithReadTime(t time.Duration) func(d *StreamDevice) {
	return func(d *StreamDevice) {
		d.readTime = t
	}
}

// WithBlockTime sets the length of streamed blocks
func WithBlockTime(t time.Duration) func(d *StreamDevice) {
	return func(d *StreamDevice) {
		d.blockTime = t
	}
}

// WithBufferTime sets the stream ring buffer length
func WithBufferTime(t time.Duration) func(d *StreamDevice) {
	return func(d *StreamDevice) {
		d.bufferTime = t
	}
}

// WithStreamOverflowHandler is called with the number of dropped bytes
// whenever the stream ring buffer overflows
func WithStreamOverflowHandler(fn func(dropped int)) func(d *StreamDevice) {
	return func(d *StreamDevice) {
		d.onOverflow = fn
	}
}

// StreamDevice drives a vendor capture tool that writes raw IQ to stdout.
// Streamed bytes are pumped into a RingBuffer by a reader goroutine so the
// tool's pipe is always drained, and a publisher goroutine cuts the buffer
// into blocks for the consumer.
type StreamDevice struct {
	deviceID string
	handler  Handler
	offset   spectrum.Frequency

	readTime   time.Duration
	blockTime  time.Duration
	bufferTime time.Duration

	isStreaming atomic.Bool
	stopping    atomic.Bool
	cancel      context.CancelFunc
	produced    chan struct{}
	wg          sync.WaitGroup

	mu  sync.Mutex
	err error

	onOverflow func(dropped int)
	logger     *slog.Logger
}

// NewStreamDevice creates a new StreamDevice instance with a discard logger
func NewStreamDevice(deviceID string, h Handler, options ...func(d *StreamDevice)) *StreamDevice {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := StreamDevice{
		deviceID:   deviceID,
		handler:    h,
		readTime:   DefaultReadTime,
		blockTime:  DefaultBlockTime,
		bufferTime: DefaultBufferTime,
		logger:     logger,
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

func (d *StreamDevice) Name() string {
	return fmt.Sprintf("%s-%s", d.handler.Device(), d.deviceID)
}

func (d *StreamDevice) Offset() spectrum.Frequency {
	return d.offset
}

// ReadData runs the capture tool for a fixed number of samples and returns them
// as a single block.
func (d *StreamDevice) ReadData(ctx context.Context, r spectrum.FrequencyRange) (Block, error) {
	if d.isStreaming.Load() {
		return Block{}, ErrAlreadyStreaming
	}

	samples := SamplesCount(r.SampleRate, d.readTime)
	if samples <= 0 {
		return Block{}, fmt.Errorf("read time %s is too short for sample rate %d", d.readTime, r.SampleRate)
	}

	cmd := d.handler.Cmd(ctx, r, samples)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Block{}, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Block{}, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return Block{}, fmt.Errorf("error starting command: %w", err)
	}

	stderrDone := make(chan error, 1)
	go d.handleStderr(stderr, stderrDone)

	raw := make([]byte, 2*samples)
	n, readErr := io.ReadFull(stdout, raw)
	_, _ = io.Copy(io.Discard, stdout)

	stderrErr := <-stderrDone
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Block{}, ctx.Err()
	}
	if readErr != nil {
		return Block{}, fmt.Errorf("%w: %d of %d bytes: %w", ErrShortRead, n, len(raw), errors.Join(readErr, waitErr))
	}
	if waitErr != nil {
		return Block{}, fmt.Errorf("command exited with error: %w", waitErr)
	}
	if stderrErr != nil {
		d.logger.Warn(stderrErr.Error())
	}

	block := Block{
		Time:    time.Now(),
		Range:   r,
		Samples: make([]complex64, samples),
	}
	d.handler.Decode(block.Samples, raw)

	return block, nil
}

// StartStream starts the capture tool in streaming mode. Stop must be called
// once the returned channel is closed before the device can be used again.
func (d *StreamDevice) StartStream(ctx context.Context, r spectrum.FrequencyRange) (<-chan Block, error) {
	if !d.isStreaming.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStreaming
	}

	blockSamples := SamplesCount(r.SampleRate, d.blockTime)
	bufferSamples := SamplesCount(r.SampleRate, d.bufferTime)
	if blockSamples <= 0 || bufferSamples < blockSamples {
		d.isStreaming.Store(false)
		return nil, fmt.Errorf("invalid stream timing: block %s, buffer %s", d.blockTime, d.bufferTime)
	}

	buffer, err := NewRingBuffer[byte](2*bufferSamples,
		WithBufferLogger[byte](d.logger),
		WithOverflowHandler[byte](d.onOverflow))
	if err != nil {
		d.isStreaming.Store(false)
		return nil, err
	}

	parent := ctx
	ctx, d.cancel = context.WithCancel(ctx)
	cmd := d.handler.Cmd(ctx, r, 0)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.cancel()
		d.isStreaming.Store(false) // Reset running state on error
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		d.cancel()
		d.isStreaming.Store(false) // Reset running state on error
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		d.cancel()
		d.isStreaming.Store(false) // Reset running state on error
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	d.setErr(nil)
	d.stopping.Store(false)

	blocks := make(chan Block)
	notify := make(chan struct{}, 1)
	produced := make(chan struct{})
	d.produced = produced

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()

		d.logger.Info("starting stream...", slog.String("range", r.String()))

		done := make(chan error, 3) // expects three results from three goroutines

		go d.handleStdout(stdout, buffer, notify, produced, done)
		go d.handleStderr(stderr, done)
		go d.handleCmdWait(parent, cmd, done)

		var errs []error
		for i := 0; i < cap(done); i++ {
			if err := <-done; err != nil {
				d.stopping.Store(true)
				d.cancel() // cancel context on error
				d.logger.Error(err.Error())

				errs = append(errs, err)
			}
		}

		d.setErr(errors.Join(errs...))
		d.logger.Info("stream stopped")
	}()

	go func() {
		defer d.wg.Done()
		defer close(blocks)

		d.publishBlocks(ctx, r, buffer, blockSamples, notify, produced, blocks)
	}()

	return blocks, nil
}

// Stop cancels a running stream, waits for it to wind down and returns the
// error that ended it. When the tool has already closed its output, it is
// given exitGracePeriod to exit so its exit status is not lost.
func (d *StreamDevice) Stop() error {
	if !d.isStreaming.Load() {
		return nil // already stopped
	}

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-d.produced:
		select {
		case <-finished:
		case <-time.After(exitGracePeriod):
		}
	default:
	}

	d.stopping.Store(true)
	d.cancel()
	<-finished
	d.isStreaming.Store(false)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// IsStreaming returns true if a stream is running
func (d *StreamDevice) IsStreaming() bool {
	return d.isStreaming.Load()
}

func (d *StreamDevice) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// publishBlocks cuts the ring buffer into blocks of blockSamples samples. It
// waits on the producer's notifications with a bounded poll so cancellation is
// observed promptly.
func (d *StreamDevice) publishBlocks(ctx context.Context, r spectrum.FrequencyRange, buffer *RingBuffer[byte], blockSamples int, notify <-chan struct{}, produced <-chan struct{}, out chan<- Block) {
	raw := make([]byte, 2*blockSamples)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	finished := false
	for {
		for buffer.AvailableData() >= len(raw) {
			buffer.Pop(raw)

			block := Block{
				Time:    time.Now(),
				Range:   r,
				Samples: make([]complex64, blockSamples),
			}
			d.handler.Decode(block.Samples, raw)

			select {
			case out <- block:
			case <-ctx.Done():
				return
			}
		}

		if finished {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-ticker.C:
		case <-produced:
			finished = true
		}
	}
}

// handleStdout pumps stdout into the ring buffer. Only whole IQ pairs are
// pushed so overflow never splits a sample.
func (d *StreamDevice) handleStdout(stdout io.Reader, buffer *RingBuffer[byte], notify chan<- struct{}, produced chan<- struct{}, done chan<- error) {
	defer close(produced)

	chunk := make([]byte, readChunkSize)
	carry := 0

	for {
		n, err := stdout.Read(chunk[carry:])
		if total := carry + n; total > 0 {
			even := total &^ 1
			if even > 0 {
				buffer.Push(chunk[:even])

				select {
				case notify <- struct{}{}:
				default:
				}
			}

			carry = total - even
			if carry > 0 {
				chunk[0] = chunk[even]
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
				done <- nil
				return
			}

			done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
			return
		}
	}
}

// handleStderr reads from stderr and logs the tool output.
func (d *StreamDevice) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Debug(fmt.Sprintf("%s >> %s", d.handler.Device(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleCmdWait waits for the command to exit. An exit caused by Stop or by
// cancellation of the parent context is not an error.
func (d *StreamDevice) handleCmdWait(parent context.Context, cmd interface{ Wait() error }, done chan<- error) {
	if err := cmd.Wait(); err != nil && !d.stopping.Load() && parent.Err() == nil {
		done <- fmt.Errorf("command exited with error: %w", err)
		return
	}

	done <- nil
}
