package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (session_uuid,
                      start_time,
                      device_type,
                      device_id,
                      config)
VALUES (?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id,
       session_uuid,
       start_time,
       device_type,
       device_id,
       config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       session_uuid,
       start_time,
       device_type,
       device_id,
       config
FROM sessions
ORDER BY start_time, id`

	insertRecordingSQL = `
INSERT INTO recordings (session_id,
                        recording_uuid,
                        path,
                        frequency,
                        bandwidth,
                        sample_rate,
                        start_time,
                        stop_time,
                        duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRecordingsSQL = `
SELECT id,
       session_id,
       recording_uuid,
       path,
       frequency,
       bandwidth,
       sample_rate,
       start_time,
       stop_time,
       duration_ms
FROM recordings
WHERE session_id = ?
ORDER BY start_time, id`

	insertSpectrogramSQL = `
INSERT INTO spectrograms (session_id,
                          timestamp,
                          start_freq,
                          stop_freq,
                          step,
                          bins,
                          data)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	spectrogramFilterSQL = `
WHERE session_id = ?
  AND timestamp BETWEEN ? AND ?
  AND stop_freq >= ?
  AND start_freq <= ?`

	selectSpectrogramBoundsSQL = `
SELECT COUNT(*),
       COALESCE(MIN(start_freq), 0),
       COALESCE(MAX(stop_freq), 0),
       COALESCE(MIN(timestamp), 0),
       COALESCE(MAX(timestamp), 0)
FROM spectrograms` + spectrogramFilterSQL

	selectSpectrogramsSQL = `
SELECT data
FROM spectrograms` + spectrogramFilterSQL + `
ORDER BY timestamp, start_freq`
)

//go:embed schema.sql
var initSchemaSQL string
