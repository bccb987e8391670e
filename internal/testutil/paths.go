// Package testutil holds fixtures shared by package tests: real git
// repositories in temporary directories and project root lookup.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindProjectRoot walks up from the working directory of the running test
// until it finds the directory holding go.mod
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}
