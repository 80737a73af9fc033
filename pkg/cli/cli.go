// Package cli provides the command-line interface for imagefinder.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to imagefinder.yaml (default: ./imagefinder.yaml if present)",
		EnvVars: []string{"IMAGEFINDER_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Device driver (appium, adb)",
		EnvVars: []string{"IMAGEFINDER_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "appium-url",
		Usage:   "Appium server URL (for appium driver)",
		EnvVars: []string{"APPIUM_URL"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"udid"},
		Usage:   "Device serial (adb) or UDID (appium)",
		EnvVars: []string{"IMAGEFINDER_DEVICE"},
	},
	&cli.Float64Flag{
		Name:    "similarity",
		Aliases: []string{"s"},
		Usage:   "Minimum similarity in [0, 1] for a match",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable debug logging (default file: <home>/logs/imagefinder.log)",
		EnvVars: []string{"IMAGEFINDER_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to this file",
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Minimum log level (debug, info, warn, error); overrides --verbose",
		EnvVars: []string{"IMAGEFINDER_LOG_LEVEL"},
	},
}

// NewApp builds the imagefinder application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "imagefinder",
		Usage:   "Find, tap and long-press UI elements by reference image",
		Version: Version,
		Description: `imagefinder matches a reference image against a live device screenshot
and taps or long-presses the match. Use it for elements without
accessibility ids: games, canvas UIs and custom widgets.

Examples:
  imagefinder find images/play.png
  imagefinder --similarity 0.9 tap images/play.png
  imagefinder --driver adb --device emulator-5554 long-press --duration 2s star.png
  imagefinder find --screenshot saved.png button.png
  imagefinder run --output ./reports flows/`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			findCommand,
			findAllCommand,
			tapCommand,
			longPressCommand,
			existsCommand,
			waitCommand,
			screenshotCommand,
			runCommand,
		},
		Before:    setupLogging,
		After:     closeLogging,
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are handled by Execute, not inside Run.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// Execute runs the CLI.
func Execute() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the app and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	err := NewApp(stdout, stderr).Run(args)
	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return exitErr.ExitCode()
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
