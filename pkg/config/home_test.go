package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("IMAGEFINDER_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("IMAGEFINDER_HOME", "")

	// Falls back to the binary's parent or cwd.
	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("IMAGEFINDER_HOME", "/first")

	first := GetHome()

	// Change env; should NOT affect cached value
	t.Setenv("IMAGEFINDER_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetLogDir(t *testing.T) {
	ResetHome()
	t.Setenv("IMAGEFINDER_HOME", "/test/home")

	got := GetLogDir()
	want := filepath.Join("/test/home", "logs")
	if got != want {
		t.Errorf("GetLogDir() = %q, want %q", got, want)
	}
}

func TestGetReportsDir(t *testing.T) {
	ResetHome()
	t.Setenv("IMAGEFINDER_HOME", "/test/home")

	got := GetReportsDir()
	want := filepath.Join("/test/home", "reports")
	if got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
}

func TestResolveHome(t *testing.T) {
	failing := func() (string, error) { return "", errors.New("unavailable") }
	fixed := func(p string) func() (string, error) {
		return func() (string, error) { return p, nil }
	}

	tests := []struct {
		name       string
		env        string
		executable func() (string, error)
		getwd      func() (string, error)
		want       string
	}{
		{"env wins", "/env/home", fixed("/opt/imagefinder/bin/imagefinder"), fixed("/work"), "/env/home"},
		{"installed layout", "", fixed("/opt/imagefinder/bin/imagefinder"), fixed("/work"), "/opt/imagefinder"},
		{"binary outside bin", "", fixed("/usr/local/imagefinder"), fixed("/work"), "/work"},
		{"no executable", "", failing, fixed("/work"), "/work"},
		{"nothing known", "", failing, failing, "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveHome(tt.env, tt.executable, tt.getwd); got != tt.want {
				t.Errorf("resolveHome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_ReportsDir(t *testing.T) {
	ResetHome()
	t.Setenv("IMAGEFINDER_HOME", "/test/home")
	t.Cleanup(ResetHome)

	if got, want := Default().ReportsDir(), filepath.Join("/test/home", "reports"); got != want {
		t.Errorf("Default().ReportsDir() = %q, want %q", got, want)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "imagefinder.yaml")
	if err := os.WriteFile(path, []byte("reportsDir: out\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.ReportsDir(), filepath.Join(dir, "out"); got != want {
		t.Errorf("ReportsDir() = %q, want %q", got, want)
	}
}
