package imagefinder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
)

// WaitUntilExists polls until ref is on screen and returns its center.
// The screen is checked at least once. It fails with core.ErrTimeout once
// timeout has elapsed, or with ctx.Err() if ctx ends first. Screenshot and
// reference errors end the wait immediately.
func (f *Finder) WaitUntilExists(ctx context.Context, ref string, timeout time.Duration) (core.Point, error) {
	return f.WaitUntilExistsWithSimilarity(ctx, ref, timeout, f.cfg.Similarity)
}

// WaitUntilExistsWithSimilarity is WaitUntilExists with an explicit threshold.
func (f *Finder) WaitUntilExistsWithSimilarity(ctx context.Context, ref string, timeout time.Duration, similarity float64) (core.Point, error) {
	var found core.Point
	err := poll(ctx, timeout, f.cfg.PollInterval, func() (bool, error) {
		p, err := f.lookup(ref, similarity)
		if err != nil {
			return false, err
		}
		found = p
		return p.Found(), nil
	})
	if err != nil {
		if err == errPollTimeout {
			return core.NotFound, core.ErrTimeout.
				WithMessage(fmt.Sprintf("image %s not visible after %v", ref, timeout)).
				WithDetails(map[string]interface{}{"image": ref, "timeout": timeout.String()})
		}
		return core.NotFound, err
	}
	return found, nil
}

// WaitUntilGone polls until ref is no longer on screen. It fails with
// core.ErrElementStillVisible once timeout has elapsed.
func (f *Finder) WaitUntilGone(ctx context.Context, ref string, timeout time.Duration) error {
	return f.WaitUntilGoneWithSimilarity(ctx, ref, timeout, f.cfg.Similarity)
}

// WaitUntilGoneWithSimilarity is WaitUntilGone with an explicit threshold.
func (f *Finder) WaitUntilGoneWithSimilarity(ctx context.Context, ref string, timeout time.Duration, similarity float64) error {
	err := poll(ctx, timeout, f.cfg.PollInterval, func() (bool, error) {
		p, err := f.lookup(ref, similarity)
		if err != nil {
			return false, err
		}
		return !p.Found(), nil
	})
	if err == errPollTimeout {
		return core.ErrElementStillVisible.
			WithMessage(fmt.Sprintf("image %s still visible after %v", ref, timeout)).
			WithDetails(map[string]interface{}{"image": ref, "timeout": timeout.String()})
	}
	return err
}

// WaitForScreenToSettle polls screenshots until two consecutive frames have
// perceptual hashes within Config.SettleThreshold of each other.
func (f *Finder) WaitForScreenToSettle(ctx context.Context, timeout time.Duration) error {
	var last *goimagehash.ImageHash
	err := poll(ctx, timeout, f.cfg.SettleInterval, func() (bool, error) {
		screen, err := f.CaptureScreenshot()
		if err != nil {
			return false, err
		}
		hash, err := goimagehash.PerceptionHash(screen)
		if err != nil {
			return false, core.ErrScreenshotUnavailable.WithCause(err)
		}
		prev := last
		last = hash
		if prev == nil {
			return false, nil
		}
		dist, err := prev.Distance(hash)
		if err != nil {
			return false, err
		}
		logger.Debug("screen hash distance %d (threshold %d)", dist, f.cfg.SettleThreshold)
		return dist <= f.cfg.SettleThreshold, nil
	})
	if err == errPollTimeout {
		return core.ErrScreenNotSettled.
			WithMessage(fmt.Sprintf("screen still changing after %v", timeout)).
			WithDetails(map[string]interface{}{"timeout": timeout.String()})
	}
	return err
}

var errPollTimeout = errors.New("poll timeout")

// poll runs check until it returns true, an error, the deadline passes or
// ctx ends. check always runs at least once, and once more after the
// deadline is reached while waiting.
func poll(ctx context.Context, timeout, interval time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errPollTimeout
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
