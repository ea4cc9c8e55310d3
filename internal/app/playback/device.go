package playback

import (
	"context"
	"time"
)

// Device is the output device contract consumed by the engine. All calls are
// serialized by the engine's lock; implementations do not need their own.
type Device interface {
	// Load prepares the file at path for playback.
	Load(path string) error
	// Start begins playback of the loaded file. May fail transiently
	// (device busy, file handle race); the engine retries.
	Start() error
	Pause()
	Resume()
	// Stop halts playback and releases the output resource.
	Stop()
	// SetVolume sets output volume. percent has already been validated
	// by the engine to lie in [0,100].
	SetVolume(percent int)
	// SeekForward advances the playback position. Seeking past the end of
	// the track simply lets the device's own end-of-track signal fire.
	SeekForward(d time.Duration) error
	// IsBusy reports whether a track is loaded and not yet finished.
	// A paused track is still busy.
	IsBusy() bool
}

// EndNotifier is an optional push-style end-of-track signal. Devices that
// can deliver a completion callback implement it; Done returns a channel
// closed when the currently loaded track finishes.
type EndNotifier interface {
	Done() <-chan struct{}
}

// EndWaiter blocks until the current track finishes. The engine's control
// loop calls it between tracks.
type EndWaiter interface {
	WaitForEnd(ctx context.Context) error
}

// NewEndWaiter returns a push-based waiter when the device supports one,
// falling back to polling the busy flag at the given interval.
func NewEndWaiter(dev Device, pollInterval time.Duration) EndWaiter {
	if n, ok := dev.(EndNotifier); ok {
		return &notifyWaiter{notifier: n}
	}
	return &pollingWaiter{dev: dev, interval: pollInterval}
}

type notifyWaiter struct {
	notifier EndNotifier
}

func (w *notifyWaiter) WaitForEnd(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.notifier.Done():
		return nil
	}
}

// pollingWaiter polls the device busy flag. Portable default for platforms
// without a completion callback.
type pollingWaiter struct {
	dev      Device
	interval time.Duration
}

func (w *pollingWaiter) WaitForEnd(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.dev.IsBusy() {
				return nil
			}
		}
	}
}
