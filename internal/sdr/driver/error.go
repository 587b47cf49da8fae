package driver

import "fmt"

// ConfigError is returned when a driver is configured with invalid settings
type ConfigError struct {
	Driver string
	Err    error
}

func NewConfigError(driver string, err error) *ConfigError {
	return &ConfigError{Driver: driver, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Driver, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RuntimeError is returned when the driver's capture tool cannot be used
type RuntimeError struct {
	Runtime string
	Err     error
}

func NewRuntimeError(runtime string, err error) *RuntimeError {
	return &RuntimeError{Runtime: runtime, Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime `%s`: %s", e.Runtime, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
