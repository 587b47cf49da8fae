package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// ErrNoData indicates that no snapshot matches the reader filters
var ErrNoData = errors.New("no data available")

// SpectrogramReader iterates over stored spectrogram snapshots in time order
type SpectrogramReader interface {
	// Bounds describes the selected snapshots.
	Bounds() Bounds

	// Next advances the iterator and returns false when the iteration is
	// complete or an error occurred.
	Next(context.Context) bool

	// Current returns the current snapshot.
	Current() *spectrum.Spectrogram

	// Error returns the error that stopped the iteration, if any.
	Error() error

	// Close releases the reader resources.
	Close() error
}

// ReaderOption configures the filters of a SpectrogramReader
type ReaderOption func(*SqliteSpectrogramReader)

// WithTimeRange selects snapshots taken between start and end inclusive
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(r *SqliteSpectrogramReader) {
		r.startTime, r.endTime = start, end
	}
}

// WithFreqRange selects snapshots overlapping the frequency range
func WithFreqRange(minFreq, maxFreq spectrum.Frequency) ReaderOption {
	return func(r *SqliteSpectrogramReader) {
		r.minFreq, r.maxFreq = minFreq, maxFreq
	}
}

// SqliteSpectrogramReader implements SpectrogramReader for the Sqlite backend
type SqliteSpectrogramReader struct {
	db        *sql.DB
	sessionID int64

	startTime time.Time
	endTime   time.Time
	minFreq   spectrum.Frequency
	maxFreq   spectrum.Frequency

	bounds  Bounds
	rows    *sql.Rows
	current *spectrum.Spectrogram
	err     error
}

var _ SpectrogramReader = (*SqliteSpectrogramReader)(nil)

func newSqliteSpectrogramReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteSpectrogramReader, error) {
	sr := &SqliteSpectrogramReader{
		db:        db,
		sessionID: sessionID,
		startTime: time.UnixMilli(0),
		endTime:   time.UnixMilli(math.MaxInt64),
		minFreq:   0,
		maxFreq:   math.MaxInt64,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, err
	}
	return sr, nil
}

func (sr *SqliteSpectrogramReader) init(ctx context.Context) error {
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if sr.startTime.After(sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}
	if sr.minFreq > sr.maxFreq {
		return fmt.Errorf("min frequency %d is greater than max frequency %d", sr.minFreq, sr.maxFreq)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading bounds", fn: sr.loadBounds},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SqliteSpectrogramReader) args() []any {
	return []any{
		sr.sessionID,
		toMillis(sr.startTime),
		toMillis(sr.endTime),
		int64(sr.minFreq),
		int64(sr.maxFreq),
	}
}

func (sr *SqliteSpectrogramReader) loadBounds(ctx context.Context) (err error) {
	stmt, err := sr.db.PrepareContext(ctx, selectSpectrogramBoundsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var start, stop, startTime, endTime int64
	if err = stmt.QueryRowContext(ctx, sr.args()...).Scan(&sr.bounds.Count, &start, &stop, &startTime, &endTime); err != nil {
		return fmt.Errorf("scanning bounds: %w", err)
	}
	if sr.bounds.Count == 0 {
		return ErrNoData
	}

	sr.bounds.Start = spectrum.Frequency(start)
	sr.bounds.Stop = spectrum.Frequency(stop)
	sr.bounds.StartTime = fromMillis(startTime)
	sr.bounds.EndTime = fromMillis(endTime)
	return nil
}

func (sr *SqliteSpectrogramReader) initQuery(ctx context.Context) (err error) {
	sr.rows, err = sr.db.QueryContext(ctx, selectSpectrogramsSQL, sr.args()...)
	return err
}

func (sr *SqliteSpectrogramReader) Bounds() Bounds {
	return sr.bounds
}

func (sr *SqliteSpectrogramReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		sr.err = err
		return false
	}

	if !sr.rows.Next() {
		sr.err = sr.rows.Err()
		return false
	}

	var data []byte
	if err := sr.rows.Scan(&data); err != nil {
		sr.err = fmt.Errorf("scanning snapshot: %w", err)
		return false
	}

	s, err := decodeSnapshot(data)
	if err != nil {
		sr.err = fmt.Errorf("decoding snapshot: %w", err)
		return false
	}

	sr.current = &s
	return true
}

func (sr *SqliteSpectrogramReader) Current() *spectrum.Spectrogram {
	return sr.current
}

func (sr *SqliteSpectrogramReader) Error() error {
	return sr.err
}

func (sr *SqliteSpectrogramReader) Close() error {
	if sr.rows == nil {
		return nil
	}
	err := sr.rows.Close()
	sr.rows = nil
	return err
}
