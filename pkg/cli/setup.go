package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/imagefinder/pkg/config"
	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/driver/adb"
	appiumdriver "github.com/devicelab-dev/imagefinder/pkg/driver/appium"
	"github.com/devicelab-dev/imagefinder/pkg/imagefinder"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
)

// connectDevice opens the configured device driver. Tests replace it.
var connectDevice = openDriver

func setupLogging(c *cli.Context) error {
	level := logger.LevelInfo
	if c.Bool("verbose") {
		level = logger.LevelDebug
	}
	if c.IsSet("log-level") {
		l, err := logger.ParseLevel(c.String("log-level"))
		if err != nil {
			return err
		}
		level = l
	}
	logger.SetLevel(level)

	path := c.String("log-file")
	if path == "" && c.Bool("verbose") {
		path = filepath.Join(config.GetLogDir(), "imagefinder.log")
	}
	if path == "" {
		// Silent unless asked
		logger.SetOutput(nil)
		return nil
	}
	return logger.Init(path)
}

func closeLogging(c *cli.Context) error {
	logger.Close()
	return nil
}

// loadConfig reads the workspace config and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}

	if c.IsSet("driver") {
		cfg.Driver = strings.ToLower(c.String("driver"))
	}
	if c.IsSet("appium-url") {
		cfg.Appium.URL = c.String("appium-url")
	}
	if c.IsSet("device") {
		cfg.ADB.Serial = c.String("device")
		if cfg.Appium.Capabilities == nil {
			cfg.Appium.Capabilities = make(map[string]interface{})
		}
		cfg.Appium.Capabilities["appium:udid"] = c.String("device")
	}
	if c.IsSet("similarity") {
		cfg.Similarity = c.Float64("similarity")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("config: driver=%s similarity=%v imageDir=%q", cfg.Driver, cfg.Similarity, cfg.ImageDir)
	return cfg, nil
}

// openDriver connects to a device with the configured driver. The returned
// cleanup closes the session.
func openDriver(cfg *config.Config) (core.Device, func(), error) {
	switch cfg.Driver {
	case config.DriverADB:
		logger.Info("Creating adb driver, serial: %q", cfg.ADB.Serial)
		d, err := adb.New(cfg.ADB.Serial)
		if err != nil {
			return nil, nil, fmt.Errorf("connect adb device: %w", err)
		}
		return d, func() {}, nil

	case config.DriverAppium:
		caps := make(map[string]interface{}, len(cfg.Appium.Capabilities))
		for k, v := range cfg.Appium.Capabilities {
			caps[k] = v
		}
		// Set defaults if not provided
		if caps["platformName"] == nil {
			caps["platformName"] = "Android"
		}
		if caps["appium:automationName"] == nil && strings.EqualFold(fmt.Sprint(caps["platformName"]), "android") {
			caps["appium:automationName"] = "UiAutomator2"
		}

		logger.Info("Creating Appium session on %s with capabilities: %v", cfg.Appium.URL, caps)
		d, err := appiumdriver.NewDriver(cfg.Appium.URL, caps)
		if err != nil {
			return nil, nil, fmt.Errorf("create Appium session: %w", err)
		}
		cleanup := func() {
			if err := d.Close(); err != nil {
				logger.Warn("close Appium session: %v", err)
			}
		}
		return d, cleanup, nil

	default:
		return nil, nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unknown driver %q", cfg.Driver))
	}
}

// session is a finder with the device behind it.
type session struct {
	cfg     *config.Config
	dev     core.Device
	finder  *imagefinder.Finder
	cleanup func()
}

func (s *session) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// openSession loads config and connects to the device, or to a saved
// screenshot when screenshotFile is set.
func openSession(c *cli.Context, screenshotFile string) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return newSession(cfg, screenshotFile)
}

func newSession(cfg *config.Config, screenshotFile string) (*session, error) {
	var dev core.Device
	var err error
	cleanup := func() {}
	if screenshotFile != "" {
		dev = fileDevice{path: screenshotFile}
	} else {
		dev, cleanup, err = connectDevice(cfg)
		if err != nil {
			return nil, err
		}
	}

	m, err := cfg.NewMatcher()
	if err != nil {
		cleanup()
		return nil, err
	}
	finder, err := imagefinder.New(dev, m, cfg.FinderConfig())
	if err != nil {
		cleanup()
		return nil, err
	}
	if info := finder.Platform(); info != nil {
		logger.Info("Connected to %s device %q (%dx%d)", info.Platform, info.DeviceID, info.ScreenWidth, info.ScreenHeight)
	}
	return &session{cfg: cfg, dev: dev, finder: finder, cleanup: cleanup}, nil
}

var errNoGestures = errors.New("a saved screenshot cannot receive gestures")

// fileDevice serves a saved screenshot and rejects gestures.
type fileDevice struct {
	path string
}

func (d fileDevice) Screenshot() ([]byte, error) {
	return os.ReadFile(d.path) //#nosec G304 -- user-provided screenshot
}

func (d fileDevice) Tap(x, y int) error { return errNoGestures }

func (d fileDevice) LongPress(x, y int, duration time.Duration) error { return errNoGestures }
