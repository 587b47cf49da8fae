package driver

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("gain out of range")
	err := error(NewConfigError("rtl", cause))

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is() = false, want true")
	}

	var configErr *ConfigError
	if !errors.As(err, &configErr) || configErr.Driver != "rtl" {
		t.Errorf("errors.As() did not yield the rtl ConfigError")
	}

	if !strings.Contains(err.Error(), "gain out of range") {
		t.Errorf("Error() = %q, want cause in message", err.Error())
	}
}

func TestRuntimeError_Unwrap(t *testing.T) {
	err := error(NewRuntimeError("rtl_sdr", exec.ErrNotFound))

	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("errors.Is(exec.ErrNotFound) = false, want true")
	}
	if !strings.HasPrefix(err.Error(), "runtime `rtl_sdr`") {
		t.Errorf("Error() = %q, want runtime prefix", err.Error())
	}
}
