// Package config handles workspace configuration for imagefinder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/imagefinder"
	"github.com/devicelab-dev/imagefinder/pkg/matcher"
)

// Supported drivers.
const (
	DriverAppium = "appium"
	DriverADB    = "adb"
)

// Matcher names.
const (
	MatcherNCC    = "ncc"
	MatcherOpenCV = "opencv" // needs a build with -tags gocv
)

// DefaultAppiumURL is the address of a locally started Appium server.
const DefaultAppiumURL = "http://127.0.0.1:4723"

// Config represents the workspace configuration (imagefinder.yaml).
type Config struct {
	// Matching
	Similarity float64   `yaml:"similarity"` // Default threshold in [0, 1]
	Scales     []float64 `yaml:"scales"`     // Reference scale factors
	Pyramid    int       `yaml:"pyramid"`    // Coarse pass block size; 0 scans every position
	Matcher    string    `yaml:"matcher"`    // ncc | opencv

	// Timing
	PollInterval      Duration `yaml:"pollInterval"`
	LongPressDuration Duration `yaml:"longPressDuration"`
	Timeout           Duration `yaml:"timeout"` // Default wait timeout for flows

	// Paths; relative ones are resolved against the config file's directory
	ImageDir string `yaml:"imageDir"`   // Reference images
	Reports  string `yaml:"reportsDir"` // Base dir for run output (default <home>/reports)

	// Device settings
	Driver string       `yaml:"driver"` // appium | adb
	Appium AppiumConfig `yaml:"appium"`
	ADB    ADBConfig    `yaml:"adb"`
}

// AppiumConfig configures the Appium driver.
type AppiumConfig struct {
	URL          string                 `yaml:"url"`
	Capabilities map[string]interface{} `yaml:"capabilities"`
}

// ADBConfig configures the adb driver.
type ADBConfig struct {
	Serial string `yaml:"serial"` // empty = first connected device
}

// Duration is a time.Duration that unmarshals from Go duration syntax
// ("500ms", "2s") or a bare number of milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Similarity:        imagefinder.DefaultSimilarity,
		Scales:            []float64{1.0},
		PollInterval:      Duration(imagefinder.DefaultPollInterval),
		LongPressDuration: Duration(imagefinder.DefaultLongPressDuration),
		Timeout:           Duration(10 * time.Second),
		Matcher:           MatcherNCC,
		Driver:            DriverAppium,
		Appium:            AppiumConfig{URL: DefaultAppiumURL},
	}
}

// Load loads configuration from a file. Fields missing from the file keep
// their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage("invalid config file " + path).WithCause(err)
	}

	base := filepath.Dir(path)
	for _, dir := range []*string{&cfg.ImageDir, &cfg.Reports} {
		if *dir != "" && !filepath.IsAbs(*dir) {
			*dir = filepath.Join(base, *dir)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir looks for imagefinder.yaml or imagefinder.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try imagefinder.yaml first
	configPath := filepath.Join(dir, "imagefinder.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try imagefinder.yml
	configPath = filepath.Join(dir, "imagefinder.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := core.ValidateSimilarity(c.Similarity); err != nil {
		return err
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("scale must be positive, got %v", s))
		}
	}
	if c.Pyramid < 0 {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("pyramid must not be negative, got %d", c.Pyramid))
	}
	if c.PollInterval < 0 || c.LongPressDuration < 0 || c.Timeout < 0 {
		return core.ErrInvalidConfig.WithMessage("durations must not be negative")
	}
	switch c.Matcher {
	case MatcherNCC, MatcherOpenCV:
	default:
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown matcher %q (want %s or %s)", c.Matcher, MatcherNCC, MatcherOpenCV))
	}
	switch c.Driver {
	case DriverAppium, DriverADB:
	default:
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown driver %q (want %s or %s)", c.Driver, DriverAppium, DriverADB))
	}
	return nil
}

// FinderConfig returns the image finder settings.
func (c *Config) FinderConfig() imagefinder.Config {
	return imagefinder.Config{
		Similarity:        c.Similarity,
		PollInterval:      c.PollInterval.Std(),
		LongPressDuration: c.LongPressDuration.Std(),
		ImageDir:          c.ImageDir,
	}
}

// MatcherOptions returns the NCC matcher settings.
func (c *Config) MatcherOptions() matcher.Options {
	return matcher.Options{Scales: c.Scales, Pyramid: c.Pyramid}
}

// NewMatcher builds the configured image matcher.
func (c *Config) NewMatcher() (matcher.Matcher, error) {
	if c.Matcher == MatcherOpenCV {
		m, err := matcher.NewOpenCV(c.MatcherOptions())
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := matcher.NewNCC(c.MatcherOptions())
	if err != nil {
		return nil, err
	}
	return m, nil
}
