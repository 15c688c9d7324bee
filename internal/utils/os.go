package utils

import (
	"os"
	"path/filepath"
)

// DefaultName is used when the running binary cannot be determined
const DefaultName = "gazeboard"

// ExecutableName returns the base name of the running binary
func ExecutableName() string {
	executable, err := os.Executable()
	if err != nil {
		return DefaultName
	}
	return filepath.Base(executable)
}

// ConfigDir returns the directory holding user configuration
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, DefaultName)
	}
	return "."
}
