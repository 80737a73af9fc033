package config

import (
	"os"
	"path/filepath"
	"sync"
)

// Home layout:
//
//	<home>/bin/imagefinder  installed binary
//	<home>/logs             --verbose logs without --log-file
//	<home>/reports          run output without --output or reportsDir
const envHome = "IMAGEFINDER_HOME"

var home struct {
	once sync.Once
	dir  string
}

// GetHome returns the imagefinder home directory: $IMAGEFINDER_HOME, the
// parent of a bin/ directory holding the binary, or the working directory.
// The result is cached for the life of the process.
func GetHome() string {
	home.once.Do(func() {
		home.dir = resolveHome(os.Getenv(envHome), os.Executable, os.Getwd)
	})
	return home.dir
}

func resolveHome(env string, executable, getwd func() (string, error)) string {
	if env != "" {
		return env
	}
	if exe, err := executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		if bin := filepath.Dir(exe); filepath.Base(bin) == "bin" {
			return filepath.Dir(bin)
		}
	}
	if cwd, err := getwd(); err == nil {
		return cwd
	}
	return "."
}

// GetLogDir returns <home>/logs.
func GetLogDir() string {
	return filepath.Join(GetHome(), "logs")
}

// GetReportsDir returns <home>/reports.
func GetReportsDir() string {
	return filepath.Join(GetHome(), "reports")
}

// ReportsDir returns the configured reportsDir, or GetReportsDir.
func (c *Config) ReportsDir() string {
	if c.Reports != "" {
		return c.Reports
	}
	return GetReportsDir()
}

// ResetHome clears the cached home directory (for testing).
func ResetHome() {
	home.once = sync.Once{}
	home.dir = ""
}
