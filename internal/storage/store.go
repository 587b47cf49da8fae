package storage

import (
	"context"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Store persists scanning sessions, the index of finished recordings and
// periodic spectrogram snapshots. Writes are atomic.
type Store interface {
	// CreateSession starts a new scanning session for a device. The config is
	// stored as is when it is a string or []byte, otherwise it is JSON encoded.
	CreateSession(ctx context.Context, deviceType, deviceID string, config any) (*Session, error)

	// Session returns a session by ID.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreRecording indexes a finished recording and returns its row ID.
	StoreRecording(ctx context.Context, sessionID int64, r *Recording) (int64, error)

	// Recordings returns the recordings of a session ordered by start time.
	Recordings(ctx context.Context, sessionID int64) ([]*Recording, error)

	// StoreSpectrograms saves snapshots in a single transaction.
	StoreSpectrograms(ctx context.Context, sessionID int64, snapshots ...spectrum.Spectrogram) error

	// Close releases the database connections. It is safe to call Close
	// multiple times.
	Close() error
}
