package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSuiteFile is the default suite file name.
const DefaultSuiteFile = ".apivet.yaml"

// LoadSuiteFile loads suite definitions from a YAML file.
// If the file does not exist it returns ErrSuiteFileNotFound so callers
// can decide whether a missing file is fatal.
func LoadSuiteFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided suite path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSuiteFileNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse suite file: %w", err)
	}

	if f.Suites == nil {
		f.Suites = make(map[string]Suite)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// FindSuiteFile searches for the suite file in the following order:
// 1. If path is specified, use it directly
// 2. Look for .apivet.yaml in the current directory
// 3. Look for .apivet.yaml in the user's home directory
//
// Returns the path if found, or empty string if not found.
func FindSuiteFile(path string) string {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err == nil {
		cwdFile := filepath.Join(cwd, DefaultSuiteFile)
		if _, err := os.Stat(cwdFile); err == nil {
			return cwdFile
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homeFile := filepath.Join(home, DefaultSuiteFile)
		if _, err := os.Stat(homeFile); err == nil {
			return homeFile
		}
	}

	return ""
}

// LoadEnv populates the process environment from a .env file next to the
// working directory, if one exists. Variables already set in the
// environment win over the file, which is godotenv's default behavior.
//
// The suite file names environment variables for credentials instead of
// holding values, so a .env file is the supported way to keep per-machine
// credentials out of version control.
func LoadEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load()
}
