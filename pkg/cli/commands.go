package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/imagefinder/pkg/matcher"
)

var screenshotFlag = &cli.StringFlag{
	Name:  "screenshot",
	Usage: "Match against a saved screenshot instead of the device",
}

var findCommand = &cli.Command{
	Name:      "find",
	Usage:     "Print the center of the best match of an image",
	ArgsUsage: "<image>",
	Description: `Capture a screenshot and print "x y score" for the best match of the
reference image. Exits 1 when nothing clears the similarity threshold.

Examples:
  imagefinder find images/play.png
  imagefinder --similarity 0.95 find --screenshot screen.png play.png`,
	Flags:  []cli.Flag{screenshotFlag},
	Action: runFind,
}

var findAllCommand = &cli.Command{
	Name:      "find-all",
	Usage:     "Print the centers of all non-overlapping matches",
	ArgsUsage: "<image>",
	Flags:     []cli.Flag{screenshotFlag},
	Action:    runFindAll,
}

var tapCommand = &cli.Command{
	Name:      "tap",
	Usage:     "Tap the center of an image",
	ArgsUsage: "<image>",
	Action:    runTap,
}

var longPressCommand = &cli.Command{
	Name:      "long-press",
	Usage:     "Long-press the center of an image",
	ArgsUsage: "<image>",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "duration",
			Usage: "Press duration (default from config, 1s)",
		},
	},
	Action: runLongPress,
}

var existsCommand = &cli.Command{
	Name:      "exists",
	Usage:     "Report whether an image is on screen (exit 1 if not)",
	ArgsUsage: "<image>",
	Flags:     []cli.Flag{screenshotFlag},
	Action:    runExists,
}

var waitCommand = &cli.Command{
	Name:      "wait",
	Usage:     "Wait until an image appears (or disappears with --gone)",
	ArgsUsage: "<image>",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait (default from config, 10s)",
		},
		&cli.BoolFlag{
			Name:  "gone",
			Usage: "Wait for the image to disappear",
		},
	},
	Action: runWait,
}

var screenshotCommand = &cli.Command{
	Name:      "screenshot",
	Usage:     "Save a device screenshot",
	ArgsUsage: "<file>",
	Action:    runScreenshot,
}

// imageArg returns the single positional argument.
func imageArg(c *cli.Context, what string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s expects exactly one %s argument", c.Command.Name, what)
	}
	return c.Args().First(), nil
}

func notFoundExit(ref string) error {
	return cli.Exit(fmt.Sprintf("%s: not found", ref), 1)
}

func runFind(c *cli.Context) error {
	ref, err := imageArg(c, "image")
	if err != nil {
		return err
	}
	s, err := openSession(c, c.String("screenshot"))
	if err != nil {
		return err
	}
	defer s.Close()

	screen, err := s.finder.CaptureScreenshot()
	if err != nil {
		return err
	}
	m, err := s.finder.Locate(screen, ref, s.cfg.Similarity)
	if err != nil {
		return err
	}
	if m == nil {
		return notFoundExit(ref)
	}
	printMatch(c, *m)
	return nil
}

func runFindAll(c *cli.Context) error {
	ref, err := imageArg(c, "image")
	if err != nil {
		return err
	}
	s, err := openSession(c, c.String("screenshot"))
	if err != nil {
		return err
	}
	defer s.Close()

	matches, err := s.finder.LocateAll(ref, s.cfg.Similarity)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return notFoundExit(ref)
	}
	for _, m := range matches {
		printMatch(c, m)
	}
	return nil
}

func printMatch(c *cli.Context, m matcher.Match) {
	p := m.Center()
	fmt.Fprintf(c.App.Writer, "%d %d %.3f\n", p.X, p.Y, m.Score)
}

func runTap(c *cli.Context) error {
	ref, err := imageArg(c, "image")
	if err != nil {
		return err
	}
	s, err := openSession(c, "")
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.finder.Tap(ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "tapped %d %d\n", p.X, p.Y)
	return nil
}

func runLongPress(c *cli.Context) error {
	ref, err := imageArg(c, "image")
	if err != nil {
		return err
	}
	s, err := openSession(c, "")
	if err != nil {
		return err
	}
	defer s.Close()

	duration := s.cfg.LongPressDuration.Std()
	if c.IsSet("duration") {
		duration = c.Duration("duration")
	}
	p, err := s.finder.LongPressFor(ref, duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "long-pressed %d %d for %v\n", p.X, p.Y, duration)
	return nil
}

func runExists(c *cli.Context) error {
	ref, err := imageArg(c, "image")
	if err != nil {
		return err
	}
	s, err := openSession(c, c.String("screenshot"))
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := s.finder.Exists(ref)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, ok)
	if !ok {
		return cli.Exit("", 1)
	}
	return nil
}

func runWait(c *cli.Context) error {
	ref, err := imageArg(c, "image")
	if err != nil {
		return err
	}
	s, err := openSession(c, "")
	if err != nil {
		return err
	}
	defer s.Close()

	timeout := s.cfg.Timeout.Std()
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	if c.Bool("gone") {
		if err := s.finder.WaitUntilGone(ctx, ref, timeout); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s gone\n", ref)
		return nil
	}

	p, err := s.finder.WaitUntilExists(ctx, ref, timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%d %d\n", p.X, p.Y)
	return nil
}

func runScreenshot(c *cli.Context) error {
	path, err := imageArg(c, "file")
	if err != nil {
		return err
	}
	s, err := openSession(c, "")
	if err != nil {
		return err
	}
	defer s.Close()

	data, err := s.dev.Screenshot()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save screenshot: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "saved %s (%d bytes)\n", path, len(data))
	return nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

