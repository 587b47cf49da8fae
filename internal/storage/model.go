package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-scanner/internal/spectrum"
)

// Session is a single run of one device
type Session struct {
	ID         int64
	UUID       uuid.UUID
	StartTime  time.Time
	DeviceType string
	DeviceID   string
	Config     *string
}

// Recording is an index entry of an audio file on disk
type Recording struct {
	ID         int64
	SessionID  int64
	UUID       uuid.UUID
	Path       string
	Frequency  spectrum.Frequency // Center frequency
	Bandwidth  spectrum.Frequency
	SampleRate spectrum.Frequency
	Start      time.Time
	Stop       time.Time
	Duration   time.Duration
}

// Bounds describes the snapshots selected by a reader
type Bounds struct {
	Count     int
	Start     spectrum.Frequency // Lowest snapshot start
	Stop      spectrum.Frequency // Highest snapshot stop
	StartTime time.Time
	EndTime   time.Time
}
