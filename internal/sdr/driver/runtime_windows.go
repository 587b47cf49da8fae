//go:build windows

package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FindRuntime looks for bin/<vendor>/windows/x64/<runtime>.exe next to the
// executable and in the working directory
func FindRuntime(runtime string) (string, error) {
	var lookup []string

	exePath, err := os.Executable()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get executable path: %w", err))
	}
	lookup = append(lookup, filepath.Dir(exePath))

	workDir, err := os.Getwd()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get current working directory: %w", err))
	}
	lookup = append(lookup, workDir)

	for _, dir := range lookup {
		matches, err := filepath.Glob(filepath.Join(dir, "bin", "*", "windows", "x64", runtime+".exe"))
		if err != nil || len(matches) == 0 {
			continue
		}

		if _, err = os.Stat(matches[0]); err != nil {
			continue
		}

		return matches[0], nil
	}

	return "", NewRuntimeError(runtime, errors.New("binary not found"))
}
