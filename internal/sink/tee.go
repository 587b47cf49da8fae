package sink

import (
	"errors"
	"time"
)

// Writer is the sink contract of a recorder.
type Writer interface {
	Write(t time.Time, samples []complex64) error
	Close() error
}

// TeeSink writes every block to all of its sinks.
type TeeSink struct {
	sinks []Writer
}

func Tee(sinks ...Writer) *TeeSink {
	return &TeeSink{sinks: sinks}
}

// Write stops at the first failing sink.
func (t *TeeSink) Write(at time.Time, samples []complex64) error {
	for _, s := range t.sinks {
		if err := s.Write(at, samples); err != nil {
			return err
		}
	}
	return nil
}

func (t *TeeSink) Close() error {
	var errs []error
	for _, s := range t.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
