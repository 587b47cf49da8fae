package sdr

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// statsInterval is the number of pops between two statistics log lines.
const statsInterval = 100

// RingBufferOption configures a RingBuffer.
type RingBufferOption[T any] func(rb *RingBuffer[T])

// WithBufferLogger sets the logger used for overflow warnings and statistics.
func WithBufferLogger[T any](logger *slog.Logger) RingBufferOption[T] {
	return func(rb *RingBuffer[T]) {
		rb.logger = logger
	}
}

// WithOverflowHandler registers a callback invoked with the number of
// overwritten elements every time a push overflows the buffer.
func WithOverflowHandler[T any](fn func(dropped int)) RingBufferOption[T] {
	return func(rb *RingBuffer[T]) {
		rb.onOverflow = fn
	}
}

// RingBuffer is a bounded single-producer single-consumer buffer that never
// blocks the producer. When a push does not fit, the oldest unread elements are
// overwritten and the read cursor is moved forward.
//
// The cursors are monotonically increasing counters; slot index is the counter
// modulo capacity. Concurrent pushes (or concurrent pops) must be serialized by
// the caller.
type RingBuffer[T any] struct {
	data     []T
	capacity uint64

	write atomic.Uint64
	read  atomic.Uint64

	pushes atomic.Uint64
	pops   atomic.Uint64

	onOverflow func(dropped int)
	logger     *slog.Logger
}

// NewRingBuffer creates a ring buffer holding up to capacity elements.
func NewRingBuffer[T any](capacity int, options ...RingBufferOption[T]) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid ring buffer capacity: %d", capacity)
	}

	rb := RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: uint64(capacity),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&rb)
	}

	return &rb, nil
}

// Push copies data into the buffer and returns the number of unread elements
// that were overwritten to make room for it.
func (rb *RingBuffer[T]) Push(data []T) int {
	if len(data) == 0 {
		return 0
	}

	rb.pushes.Add(1)

	size := uint64(len(data))
	dropped := uint64(0)

	// Only the newest capacity elements can survive a single push.
	if size > rb.capacity {
		dropped = size - rb.capacity
		data = data[dropped:]
		size = rb.capacity
	}

	w := rb.write.Load()

	// Advance the read cursor before the slots are overwritten, so a consumer
	// copying from those slots fails its cursor update and retries.
	for {
		r := rb.read.Load()
		if w+size-r <= rb.capacity {
			break
		}
		next := w + size - rb.capacity
		if rb.read.CompareAndSwap(r, next) {
			dropped += next - r
			break
		}
	}

	start := w % rb.capacity
	n := copy(rb.data[start:], data)
	copy(rb.data, data[n:])

	rb.write.Store(w + size)

	if dropped > 0 {
		rb.logger.Warn("ring buffer overflow, unread data overwritten",
			slog.Uint64("dropped", dropped),
			slog.Uint64("capacity", rb.capacity))

		if rb.onOverflow != nil {
			rb.onOverflow(int(dropped))
		}
	}

	return int(dropped)
}

// Pop copies up to len(dst) of the oldest unread elements into dst and returns
// the number of elements copied.
func (rb *RingBuffer[T]) Pop(dst []T) int {
	if len(dst) == 0 {
		return 0
	}

	for {
		r := rb.read.Load()
		w := rb.write.Load()

		available := w - r
		if available == 0 {
			return 0
		}

		size := min(uint64(len(dst)), available)

		start := r % rb.capacity
		end := min(start+size, rb.capacity)
		n := copy(dst, rb.data[start:end])
		copy(dst[n:size], rb.data)

		if !rb.read.CompareAndSwap(r, r+size) {
			continue // the producer overwrote what we were reading
		}

		if pops := rb.pops.Add(1); pops%statsInterval == 0 {
			rb.logger.Debug("ring buffer statistics",
				slog.Uint64("pushes", rb.pushes.Load()),
				slog.Uint64("pops", pops),
				slog.Int("available", rb.AvailableData()))
		}

		return int(size)
	}
}

// AvailableData returns the number of unread elements.
func (rb *RingBuffer[T]) AvailableData() int {
	r := rb.read.Load()
	w := rb.write.Load()
	if w < r {
		return 0
	}
	return int(w - r)
}

// AvailableSpace returns the number of elements that can be pushed without
// overwriting unread data.
func (rb *RingBuffer[T]) AvailableSpace() int {
	return int(rb.capacity) - rb.AvailableData()
}

// Capacity returns the buffer capacity in elements.
func (rb *RingBuffer[T]) Capacity() int {
	return int(rb.capacity)
}

// Reset discards all unread data. It must not run concurrently with Pop.
func (rb *RingBuffer[T]) Reset() {
	rb.read.Store(rb.write.Load())
}
