package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/notify"
	"github.com/a3ro-dev/FAM/internal/app/voice"
	"github.com/a3ro-dev/FAM/internal/domain/playlist"
	"github.com/a3ro-dev/FAM/internal/domain/track"
)

// Errors
var (
	ErrInvalidVolume = errors.New("volume must be between 0 and 100")
	ErrInvalidSeek   = errors.New("seek offset must be positive")
)

// Config holds engine configuration.
type Config struct {
	StartAttempts  int           // Total attempts to start a track before skipping it
	RetryDelay     time.Duration // Delay between start attempts
	PollInterval   time.Duration // Busy-poll fallback interval for end-of-track detection
	AnnounceVolume int           // Output volume while the track announcement plays
	FullVolume     int           // Output volume restored after the announcement
}

func (c *Config) setDefaults() {
	if c.StartAttempts <= 0 {
		c.StartAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.AnnounceVolume <= 0 {
		c.AnnounceVolume = 20
	}
	if c.FullVolume <= 0 {
		c.FullVolume = 100
	}
}

// Engine drives the output device over a playlist. All state transitions
// happen under one exclusive lock; playback itself runs on the device and
// is observed by a single control-loop goroutine.
type Engine struct {
	mu sync.Mutex

	state    State
	playlist *playlist.Playlist
	current  int

	device Device
	waiter EndWaiter
	speech voice.Output
	events *notify.Manager

	config Config

	// playbackID increments on every successful track start. The control
	// loop snapshots it before blocking so a finish signal that arrives
	// after a stop or manual skip is recognized as stale and ignored.
	playbackID uint64

	// failedStarts counts consecutive tracks that exhausted their start
	// attempts. Reaching the playlist length means nothing is playable.
	failedStarts int

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewEngine creates a playback engine over the given playlist and device.
// speech may be nil to disable "Now Playing" announcements; events may be
// nil to disable notifications.
func NewEngine(dev Device, pl *playlist.Playlist, speech voice.Output, events *notify.Manager, cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		state:    StateStopped,
		playlist: pl,
		device:   dev,
		waiter:   NewEndWaiter(dev, cfg.PollInterval),
		speech:   speech,
		events:   events,
		config:   cfg,
	}
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the track at the play position, if the playlist has any.
func (e *Engine) Current() (track.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playlist.Len() == 0 {
		return track.Track{}, false
	}
	return e.playlist.Tracks[e.current], true
}

// QueueStatus returns the 1-based play position and the playlist length.
func (e *Engine) QueueStatus() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current + 1, e.playlist.Len()
}

// Play starts playback of the track at the current position. No-op when the
// playlist is empty or playback is already running; resumes when paused.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playlist.Len() == 0 {
		zlog.Debug().Msg("playback: play requested with empty playlist")
		return nil
	}
	if e.state == StatePlaying {
		return nil
	}
	if e.state == StatePaused {
		return e.resumeLocked()
	}

	e.state = StatePlaying
	e.ensureLoopLocked()
	e.playCurrentLocked()
	return nil
}

// PlaySpecific resolves name against the playlist (exact, then fuzzy) and
// plays the matched track. The play position moves to the match so a later
// "next" continues from there. Returns playlist.ErrNoMatch when nothing
// resembles the name.
func (e *Engine) PlaySpecific(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, idx, err := e.playlist.FindByName(name)
	if err != nil {
		return err
	}

	zlog.Info().Msgf("playback: playing requested track: track=%s index=%d", t.DisplayName, idx)
	e.current = idx
	e.state = StatePlaying
	e.ensureLoopLocked()
	e.playCurrentLocked()
	return nil
}

// Pause pauses playback. Idempotent: a no-op unless currently playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return
	}
	e.device.Pause()
	e.state = StatePaused
	e.publishStateLocked()
}

// Resume resumes paused playback. Idempotent: a no-op unless paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.resumeLocked()
}

func (e *Engine) resumeLocked() error {
	if e.state != StatePaused {
		return nil
	}
	e.device.Resume()
	e.state = StatePlaying
	e.publishStateLocked()
	return nil
}

// Stop halts playback, joins the control loop and releases the output
// device. Safe to call from any state, including when nothing is playing.
func (e *Engine) Stop() {
	e.mu.Lock()
	done := e.loopDone
	e.haltLocked()
	e.mu.Unlock()

	if done != nil {
		<-done
	}
}

// haltLocked transitions to Stopped and cancels the control loop without
// joining it. Must be called with the lock held.
func (e *Engine) haltLocked() {
	if e.state == StateStopped && e.loopCancel == nil {
		return
	}

	e.state = StateStopped
	e.playbackID++
	e.device.Stop()
	if e.loopCancel != nil {
		e.loopCancel()
		e.loopCancel = nil
	}
	e.publishStateLocked()
}

// Next advances to the following track, wrapping to the start after the
// last one; the playlist loops indefinitely.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playlist.Len() == 0 {
		return
	}

	e.state = StatePlaying
	e.ensureLoopLocked()
	e.advanceLocked()
}

// SetVolume sets the output volume. Out-of-range values are rejected with
// ErrInvalidVolume, never clamped: callers validate before ducking math.
func (e *Engine) SetVolume(percent int) error {
	if percent < 0 || percent > 100 {
		return errors.Wrapf(ErrInvalidVolume, "got %d", percent)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.device.SetVolume(percent)
	return nil
}

// SeekForward advances the playback position. Seeking past the track end
// lets the device's end-of-track signal fire naturally.
func (e *Engine) SeekForward(d time.Duration) error {
	if d <= 0 {
		return errors.Wrapf(ErrInvalidSeek, "got %v", d)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		return nil
	}
	return e.device.SeekForward(d)
}

// Reload replaces the playlist, e.g. after the music directory changed.
// The play position is clamped via modulo so an in-flight index stays valid.
func (e *Engine) Reload(pl *playlist.Playlist) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.playlist = pl
	if pl.Len() > 0 {
		e.current = e.current % pl.Len()
	} else {
		e.current = 0
		e.haltLocked()
	}
	e.failedStarts = 0
}

// advanceLocked moves to the next track modulo playlist length and starts
// it. Must be called with the lock held and a non-empty playlist.
func (e *Engine) advanceLocked() {
	e.current = (e.current + 1) % e.playlist.Len()
	e.playCurrentLocked()
}

// playCurrentLocked implements the track-start protocol: up to
// config.StartAttempts attempts with a fixed delay, then log and skip.
// Around a successful start the announcement is spoken at ducked volume.
// Must be called with the lock held.
func (e *Engine) playCurrentLocked() {
	t := e.playlist.Tracks[e.current]

	var lastErr error
	for attempt := 1; attempt <= e.config.StartAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(e.config.RetryDelay)
		}
		if err := e.device.Load(t.Path); err != nil {
			lastErr = err
			continue
		}
		if err := e.device.Start(); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		zlog.Error().Msgf("playback: track failed to start after %d attempts, skipping: track=%s err=%v",
			e.config.StartAttempts, t.DisplayName, lastErr)
		e.publishLocked(notify.Event{Type: notify.EventTrackSkipped, Track: t.DisplayName, Detail: "start_failed"})

		e.failedStarts++
		if e.failedStarts >= e.playlist.Len() {
			zlog.Error().Msg("playback: no playable tracks in playlist, stopping")
			e.haltLocked()
			return
		}
		e.advanceLocked()
		return
	}

	e.failedStarts = 0
	e.playbackID++

	// Duck, announce synchronously, restore. The ducking brackets exactly
	// the announcement.
	e.device.SetVolume(e.config.AnnounceVolume)
	if e.speech != nil {
		if err := e.speech.Speak(context.Background(), "Now Playing: "+t.DisplayName); err != nil {
			zlog.Warn().Msgf("playback: announcement failed: track=%s err=%v", t.DisplayName, err)
		}
	}
	e.device.SetVolume(e.config.FullVolume)

	zlog.Info().Msgf("playback: track started: track=%s position=%d/%d", t.DisplayName, e.current+1, e.playlist.Len())
	e.publishLocked(notify.Event{Type: notify.EventTrackStarted, Track: t.DisplayName})
}

// ensureLoopLocked starts the control loop if it is not already running.
// Check-and-set under the lock: two rapid play() calls spawn one loop.
func (e *Engine) ensureLoopLocked() {
	if e.loopCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.loopCancel = cancel
	e.loopDone = make(chan struct{})
	go e.controlLoop(ctx, e.loopDone)
}

// controlLoop blocks on the device's end-of-track signal and advances the
// playlist. A finish observed while paused or stopped, or one belonging to
// a previous track generation, is ignored.
func (e *Engine) controlLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		e.mu.Lock()
		if e.state == StateStopped {
			e.mu.Unlock()
			return
		}
		gen := e.playbackID
		e.mu.Unlock()

		if err := e.waiter.WaitForEnd(ctx); err != nil {
			return
		}

		e.mu.Lock()
		if e.state == StatePlaying && e.playbackID == gen {
			zlog.Debug().Msg("playback: track finished, advancing")
			e.advanceLocked()
		}
		e.mu.Unlock()
	}
}

func (e *Engine) publishStateLocked() {
	var name string
	if e.playlist.Len() > 0 {
		name = e.playlist.Tracks[e.current].DisplayName
	}
	e.publishLocked(notify.Event{Type: notify.EventStateChanged, Track: name, Detail: e.state.String()})
}

// publishLocked fires the event without holding up the engine.
func (e *Engine) publishLocked(ev notify.Event) {
	go e.events.Publish(ev)
}
