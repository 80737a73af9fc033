// Package adb implements core.Device on top of the adb command line:
// screencap for screenshots, input tap/swipe for gestures.
package adb

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
)

// RunFunc runs adb with the given arguments and returns its stdout.
type RunFunc func(args ...string) ([]byte, error)

// Driver controls an Android device through adb. screencap frames and
// input coordinates share the current display orientation, so the driver
// is not a core.ScreenSizer; the `wm size` it reads is the natural
// (portrait) size and only feeds GetPlatformInfo.
type Driver struct {
	serial   string
	run      RunFunc
	naturalW int
	naturalH int
}

var (
	_ core.Device           = (*Driver)(nil)
	_ core.PlatformReporter = (*Driver)(nil)
)

// Entry is a line of `adb devices` output.
type Entry struct {
	Serial string
	State  string // device, offline, unauthorized
}

// New creates a Driver for the given serial.
// If serial is empty, it auto-detects the connected device.
func New(serial string) (*Driver, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, core.ErrDeviceDisconnected.WithCause(err)
	}
	return NewWithRunner(serial, execRunner(adbPath))
}

// NewWithRunner creates a Driver that runs adb through run.
func NewWithRunner(serial string, run RunFunc) (*Driver, error) {
	if serial == "" {
		out, err := run("devices")
		if err != nil {
			return nil, core.ErrDeviceDisconnected.WithCause(err)
		}
		serial, err = firstReady(ParseDevices(string(out)))
		if err != nil {
			return nil, core.ErrDeviceDisconnected.WithCause(
				fmt.Errorf("no device specified and auto-detect failed: %w", err))
		}
	}

	d := &Driver{serial: serial, run: run}

	// Verify device is connected
	if err := d.waitForDevice(5*time.Second, 500*time.Millisecond); err != nil {
		return nil, core.ErrDeviceDisconnected.WithCause(err)
	}

	if w, h, err := d.fetchScreenSize(); err == nil {
		d.naturalW, d.naturalH = w, h
	} else {
		logger.Warn("adb: could not read screen size of %s: %v", serial, err)
	}

	return d, nil
}

// ParseDevices parses `adb devices` output.
func ParseDevices(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			entries = append(entries, Entry{Serial: parts[0], State: parts[1]})
		}
	}
	return entries
}

func firstReady(entries []Entry) (string, error) {
	for _, e := range entries {
		if e.State == "device" {
			return e.Serial, nil
		}
	}
	return "", fmt.Errorf("no connected devices found")
}

// Serial returns the device serial number.
func (d *Driver) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *Driver) Shell(cmd string) (string, error) {
	out, err := d.adb("shell", cmd)
	return string(out), err
}

// Screenshot implements core.ScreenshotSource. exec-out keeps the PNG
// stream binary-clean.
func (d *Driver) Screenshot() ([]byte, error) {
	return d.adb("exec-out", "screencap", "-p")
}

// Tap implements core.GestureSink.
func (d *Driver) Tap(x, y int) error {
	_, err := d.Shell(fmt.Sprintf("input tap %d %d", x, y))
	return err
}

// LongPress implements core.GestureSink as a zero-length swipe.
func (d *Driver) LongPress(x, y int, duration time.Duration) error {
	_, err := d.Shell(fmt.Sprintf("input swipe %d %d %d %d %d", x, y, x, y, duration.Milliseconds()))
	return err
}

// GetPlatformInfo returns platform information.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	info := &core.PlatformInfo{
		Platform:     "android",
		DeviceID:     d.serial,
		ScreenWidth:  d.naturalW,
		ScreenHeight: d.naturalH,
	}
	if model, err := d.Shell("getprop ro.product.model"); err == nil {
		info.DeviceName = strings.TrimSpace(model)
	}
	return info
}

// fetchScreenSize reads `wm size`. An override size wins over the
// physical size.
func (d *Driver) fetchScreenSize() (int, int, error) {
	out, err := d.Shell("wm size")
	if err != nil {
		return 0, 0, err
	}
	return parseWMSize(out)
}

func parseWMSize(out string) (int, int, error) {
	var w, h int
	found := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		var value string
		switch {
		case strings.HasPrefix(line, "Override size:"):
			value = strings.TrimSpace(strings.TrimPrefix(line, "Override size:"))
		case strings.HasPrefix(line, "Physical size:") && !found:
			value = strings.TrimSpace(strings.TrimPrefix(line, "Physical size:"))
		default:
			continue
		}
		pw, ph, ok := parseSize(value)
		if !ok {
			continue
		}
		w, h, found = pw, ph, true
	}
	if !found {
		return 0, 0, fmt.Errorf("unexpected wm size output: %q", strings.TrimSpace(out))
	}
	return w, h, nil
}

func parseSize(s string) (int, int, bool) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return w, h, true
}

// waitForDevice waits for the device to be available.
func (d *Driver) waitForDevice(timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if d.isConnected() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for device %s", d.serial)
		}
		time.Sleep(interval)
	}
}

// isConnected checks if the device is connected.
func (d *Driver) isConnected() bool {
	out, err := d.adb("get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "device"
}

// adb executes an ADB command against this device.
func (d *Driver) adb(args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)
	return d.run(cmdArgs...)
}

func execRunner(adbPath string) RunFunc {
	return func(args ...string) ([]byte, error) {
		cmd := exec.Command(adbPath, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			errMsg := stderr.String()
			if errMsg == "" {
				errMsg = stdout.String()
			}
			return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(errMsg))
		}
		return stdout.Bytes(), nil
	}
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
