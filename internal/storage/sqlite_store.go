package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, deviceType, deviceID string, config any) (session *Session, err error) {
	var configData sql.NullString

	switch c := config.(type) {
	case nil:
	case string:
		configData = sql.NullString{String: c, Valid: true}
	case []byte:
		configData = sql.NullString{String: string(c), Valid: true}
	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			return nil, fmt.Errorf("marshaling config: %w", err)
		}
		configData = sql.NullString{String: string(p), Valid: true}
	}

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	sess := Session{
		UUID:       uuid.New(),
		StartTime:  fromMillis(toMillis(timeNow())),
		DeviceType: deviceType,
		DeviceID:   deviceID,
		Config:     fromNullString(configData),
	}

	result, err := stmt.ExecContext(ctx, sess.UUID.String(), toMillis(sess.StartTime), deviceType, deviceID, configData)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	if sess.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting session ID: %w", err)
	}
	return &sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		sessUUID  string
		startTime int64
		config    sql.NullString
	)
	if err := row.Scan(&sess.ID, &sessUUID, &startTime, &sess.DeviceType, &sess.DeviceID, &config); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(sessUUID)
	if err != nil {
		return nil, fmt.Errorf("parsing session UUID: %w", err)
	}

	sess.UUID = id
	sess.StartTime = fromMillis(startTime)
	sess.Config = fromNullString(config)
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return session, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SqliteStore) StoreRecording(ctx context.Context, sessionID int64, r *Recording) (recordingID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return 0, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertRecordingSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		sessionID,
		r.UUID.String(),
		r.Path,
		int64(r.Frequency),
		int64(r.Bandwidth),
		int64(r.SampleRate),
		toMillis(r.Start),
		toMillis(r.Stop),
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting recording: %w", err)
	}

	if recordingID, err = result.LastInsertId(); err != nil {
		return 0, fmt.Errorf("getting recording ID: %w", err)
	}

	r.ID, r.SessionID = recordingID, sessionID
	return recordingID, nil
}

func (s *SqliteStore) Recordings(ctx context.Context, sessionID int64) (recordings []*Recording, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRecordingsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying recordings: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			r                      Recording
			recUUID                string
			frequency, bandwidth   int64
			sampleRate, durationMs int64
			start, stop            int64
		)
		if err = rows.Scan(&r.ID, &r.SessionID, &recUUID, &r.Path, &frequency, &bandwidth, &sampleRate, &start, &stop, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning recording: %w", err)
		}
		if r.UUID, err = uuid.Parse(recUUID); err != nil {
			return nil, fmt.Errorf("parsing recording UUID: %w", err)
		}

		r.Frequency = spectrum.Frequency(frequency)
		r.Bandwidth = spectrum.Frequency(bandwidth)
		r.SampleRate = spectrum.Frequency(sampleRate)
		r.Start = fromMillis(start)
		r.Stop = fromMillis(stop)
		r.Duration = time.Duration(durationMs) * time.Millisecond

		recordings = append(recordings, &r)
	}
	return recordings, rows.Err()
}

func (s *SqliteStore) StoreSpectrograms(ctx context.Context, sessionID int64, snapshots ...spectrum.Spectrogram) (err error) {
	if len(snapshots) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertSpectrogramSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, snapshot := range snapshots {
		if _, err = stmt.ExecContext(
			ctx,
			sessionID,
			toMillis(snapshot.Time),
			int64(snapshot.Range.Start),
			int64(snapshot.Range.Stop),
			int64(snapshot.Range.Step),
			len(snapshot.Signals),
			encodeSnapshot(snapshot),
		); err != nil {
			return fmt.Errorf("inserting spectrogram: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReadSpectrograms creates a reader over the snapshots of a session. The
// reader must be closed after use. It returns ErrNoData when no snapshot
// matches the filters.
func (s *SqliteStore) ReadSpectrograms(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteSpectrogramReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSpectrogramReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if s.writeDB != nil {
			errs = append(errs, s.writeDB.Close())
			s.writeDB = nil
		}

		if s.readDB != nil {
			errs = append(errs, s.readDB.Close())
			s.readDB = nil
		}

		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}
