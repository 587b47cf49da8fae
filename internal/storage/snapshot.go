package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
	"github.com/roman-kulish/radio-scanner/internal/telemetry"
)

// Snapshots are stored as zstd compressed telemetry spectrogram payloads.
// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func encodeSnapshot(s spectrum.Spectrogram) []byte {
	return encoder.EncodeAll(telemetry.EncodeSpectrogram(s), nil)
}

func decodeSnapshot(data []byte) (spectrum.Spectrogram, error) {
	payload, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return spectrum.Spectrogram{}, fmt.Errorf("decompressing snapshot: %w", err)
	}
	return telemetry.DecodeSpectrogram(payload)
}
