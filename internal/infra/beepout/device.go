// Package beepout implements audio output on the local sound card using
// beep. It provides the playback device, the TTS stream player and the
// interaction chimes, all sharing one speaker.
package beepout

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// sampleRate is the shared speaker rate. Everything else is resampled to it.
const sampleRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	return speakerErr
}

// Device plays local audio files through the speaker. It implements the
// playback engine's device contract including the push-style end-of-track
// signal.
type Device struct {
	mu sync.Mutex

	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	percent int // persists across track loads
	busy    bool
	done    chan struct{}
}

// NewDevice initializes the speaker and returns a device at full volume.
func NewDevice() (*Device, error) {
	if err := initSpeaker(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	return &Device{
		percent: 100,
		done:    make(chan struct{}),
	}, nil
}

// Load decodes the file at path and prepares it for playback, replacing
// whatever was loaded before.
func (d *Device) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open audio file")
	}

	streamer, format, err := decode(f, path)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to decode %s", path)
	}

	d.file = f
	d.streamer = streamer
	d.format = format

	resampled := beep.Resample(4, format.SampleRate, sampleRate, streamer)
	d.volume = &effects.Volume{Streamer: resampled, Base: 2}
	applyVolume(d.volume, d.percent)
	d.ctrl = &beep.Ctrl{Streamer: d.volume}
	d.done = make(chan struct{})
	return nil
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	default:
		return nil, beep.Format{}, errors.Newf("unsupported audio format: %s", path)
	}
}

// Start begins playback of the loaded file.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return errors.New("no file loaded")
	}

	done := d.done
	speaker.Play(beep.Seq(d.ctrl, beep.Callback(func() {
		// the callback runs on the speaker goroutine; finish bookkeeping
		// happens elsewhere so no speaker lock is held
		go d.finish(done)
	})))
	d.busy = true
	return nil
}

// finish marks the device idle if the finished track is still the loaded one.
// A superseded track's channel was already closed by stopLocked.
func (d *Device) finish(done chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != done {
		return
	}
	d.busy = false
	close(done)
}

// Pause pauses playback.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	d.ctrl.Paused = true
	speaker.Unlock()
}

// Resume resumes paused playback.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	d.ctrl.Paused = false
	speaker.Unlock()
}

// Stop halts playback and releases the loaded file.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// stopLocked clears the speaker so the pending end-of-track callback never
// fires for an abandoned track, and closes the track's done channel so a
// waiter blocked on it is released. Must be called with the lock held.
func (d *Device) stopLocked() {
	if d.streamer == nil {
		return
	}

	speaker.Clear()
	d.streamer.Close()
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
	d.streamer = nil
	d.ctrl = nil
	d.volume = nil
	d.busy = false

	// The channel is still open unless the track finished naturally and
	// finish already closed it.
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	d.done = make(chan struct{})
}

// SetVolume sets the output volume in percent. The value persists across
// track loads.
func (d *Device) SetVolume(percent int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.percent = percent
	if d.volume == nil {
		return
	}
	speaker.Lock()
	applyVolume(d.volume, percent)
	speaker.Unlock()
}

// applyVolume maps a percentage to beep's logarithmic volume scale.
func applyVolume(v *effects.Volume, percent int) {
	if percent <= 0 {
		v.Silent = true
		return
	}
	v.Silent = false
	v.Volume = math.Log2(float64(percent) / 100)
}

// SeekForward advances the playback position, clamped to the end of the
// track so the end-of-track callback fires naturally.
func (d *Device) SeekForward(dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streamer == nil {
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	target := d.streamer.Position() + d.format.SampleRate.N(dur)
	if max := d.streamer.Len() - 1; target > max {
		target = max
	}
	return d.streamer.Seek(target)
}

// IsBusy reports whether a track is loaded and not yet finished. A paused
// track is still busy.
func (d *Device) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Done returns a channel closed when the loaded track finishes.
func (d *Device) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// PlayMP3 decodes MP3 data from r and plays it to completion, mixed over
// whatever the device is playing. Used for TTS responses.
func PlayMP3(ctx context.Context, r io.ReadCloser) error {
	if err := initSpeaker(); err != nil {
		return errors.Wrap(err, "failed to initialize speaker")
	}

	streamer, format, err := mp3.Decode(r)
	if err != nil {
		return errors.Wrap(err, "failed to decode speech audio")
	}
	defer streamer.Close()

	resampled := beep.Resample(4, format.SampleRate, sampleRate, streamer)
	done := make(chan struct{})
	speaker.Play(beep.Seq(resampled, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
