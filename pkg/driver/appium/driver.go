package appium

import (
	"time"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// Driver implements core.Device using Appium server.
type Driver struct {
	client *Client
}

var (
	_ core.Device           = (*Driver)(nil)
	_ core.ScreenSizer      = (*Driver)(nil)
	_ core.PlatformReporter = (*Driver)(nil)
)

// NewDriver creates a session on the Appium server.
func NewDriver(serverURL string, capabilities map[string]interface{}) (*Driver, error) {
	client := NewClient(serverURL)

	if err := client.Connect(capabilities); err != nil {
		return nil, err
	}

	return &Driver{client: client}, nil
}

// Close disconnects from Appium server.
func (d *Driver) Close() error {
	return d.client.Disconnect()
}

// Screenshot implements core.ScreenshotSource.
func (d *Driver) Screenshot() ([]byte, error) {
	return d.client.Screenshot()
}

// Tap implements core.GestureSink.
func (d *Driver) Tap(x, y int) error {
	return d.client.Tap(x, y)
}

// LongPress implements core.GestureSink.
func (d *Driver) LongPress(x, y int, duration time.Duration) error {
	return d.client.LongPress(x, y, int(duration.Milliseconds()))
}

// ScreenSize implements core.ScreenSizer. iOS reports points, so the size
// is usually smaller than the screenshot.
func (d *Driver) ScreenSize() (int, int) {
	return d.client.ScreenSize()
}

// GetPlatformInfo returns platform information.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	w, h := d.client.ScreenSize()
	return &core.PlatformInfo{
		Platform:     d.client.Platform(),
		DeviceName:   d.client.deviceName,
		DeviceID:     d.client.udid,
		ScreenWidth:  w,
		ScreenHeight: h,
	}
}
