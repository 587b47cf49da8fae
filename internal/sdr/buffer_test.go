package sdr

import (
	"sync"
	"testing"
)

func sequence(from, to int) []byte {
	data := make([]byte, 0, to-from)
	for i := from; i < to; i++ {
		data = append(data, byte(i))
	}
	return data
}

func TestNewRingBuffer_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewRingBuffer[byte](capacity); err == nil {
			t.Errorf("NewRingBuffer(%d) expected error", capacity)
		}
	}
}

func TestRingBuffer_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		ops      []int // positive: push n bytes, negative: pop n bytes
	}{
		{"single push pop", 16, []int{10, -10}},
		{"wrap around", 16, []int{12, -8, 10, -14}},
		{"many small", 7, []int{3, -2, 3, -3, 3, -1, 2, -5}},
		{"partial pops", 10, []int{10, -3, -3, -4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb, err := NewRingBuffer[byte](tt.capacity)
			if err != nil {
				t.Fatalf("Failed to create buffer: %v", err)
			}

			var pushed, popped []byte
			next := 0
			for _, op := range tt.ops {
				if op > 0 {
					data := sequence(next, next+op)
					next += op
					if dropped := rb.Push(data); dropped != 0 {
						t.Fatalf("Push() dropped %d elements within capacity", dropped)
					}
					pushed = append(pushed, data...)
					continue
				}

				dst := make([]byte, -op)
				n := rb.Pop(dst)
				popped = append(popped, dst[:n]...)
			}

			if len(popped) != len(pushed) {
				t.Fatalf("popped %d bytes, want %d", len(popped), len(pushed))
			}
			for i := range pushed {
				if popped[i] != pushed[i] {
					t.Fatalf("byte %d = %d, want %d", i, popped[i], pushed[i])
				}
			}
			if got := rb.AvailableData(); got != 0 {
				t.Errorf("AvailableData() = %d, want 0", got)
			}
			if got := rb.AvailableSpace(); got != tt.capacity {
				t.Errorf("AvailableSpace() = %d, want %d", got, tt.capacity)
			}
		})
	}
}

func TestRingBuffer_OverflowSinglePush(t *testing.T) {
	var overflows []int
	rb, err := NewRingBuffer[byte](100, WithOverflowHandler[byte](func(dropped int) {
		overflows = append(overflows, dropped)
	}))
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	dropped := rb.Push(sequence(0, 150))
	if dropped != 50 {
		t.Errorf("Push() dropped = %d, want 50", dropped)
	}
	if got := rb.AvailableData(); got != 100 {
		t.Fatalf("AvailableData() = %d, want 100", got)
	}
	if len(overflows) != 1 || overflows[0] != 50 {
		t.Errorf("overflow handler calls = %v, want [50]", overflows)
	}

	dst := make([]byte, 150)
	n := rb.Pop(dst)
	if n != 100 {
		t.Fatalf("Pop() = %d, want 100", n)
	}
	for i := 0; i < n; i++ {
		if dst[i] != byte(50+i) {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], 50+i)
		}
	}
}

func TestRingBuffer_OverflowOverwritesOldest(t *testing.T) {
	rb, err := NewRingBuffer[byte](10)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	rb.Push(sequence(0, 8))
	dropped := rb.Push(sequence(8, 14))
	if dropped != 4 {
		t.Errorf("Push() dropped = %d, want 4", dropped)
	}
	if got := rb.AvailableData(); got != 10 {
		t.Fatalf("AvailableData() = %d, want 10", got)
	}
	if got := rb.AvailableSpace(); got != 0 {
		t.Errorf("AvailableSpace() = %d, want 0", got)
	}

	dst := make([]byte, 10)
	rb.Pop(dst)
	for i, b := range dst {
		if b != byte(4+i) {
			t.Fatalf("byte %d = %d, want %d", i, b, 4+i)
		}
	}
}

func TestRingBuffer_ComplexSamples(t *testing.T) {
	rb, err := NewRingBuffer[complex64](4)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	rb.Push([]complex64{1, 2, 3})
	rb.Push([]complex64{4, 5})

	dst := make([]complex64, 4)
	if n := rb.Pop(dst); n != 4 {
		t.Fatalf("Pop() = %d, want 4", n)
	}
	want := []complex64{2, 3, 4, 5}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb, err := NewRingBuffer[byte](8)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	rb.Push(sequence(0, 5))
	rb.Reset()

	if got := rb.AvailableData(); got != 0 {
		t.Errorf("AvailableData() after Reset = %d, want 0", got)
	}
	if n := rb.Pop(make([]byte, 4)); n != 0 {
		t.Errorf("Pop() after Reset = %d, want 0", n)
	}
}

func TestRingBuffer_ProducerConsumer(t *testing.T) {
	const total = 10_000

	rb, err := NewRingBuffer[byte](total)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i += 10 {
			rb.Push(sequence(i, i+10))
		}
	}()

	received := make([]byte, 0, total)
	dst := make([]byte, 64)
	for len(received) < total {
		n := rb.Pop(dst)
		received = append(received, dst[:n]...)
	}
	wg.Wait()

	for i := range received {
		if received[i] != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, received[i], byte(i))
		}
	}
}
