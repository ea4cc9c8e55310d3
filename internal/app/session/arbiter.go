package session

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/notify"
	"github.com/a3ro-dev/FAM/internal/app/playback"
	"github.com/a3ro-dev/FAM/internal/app/voice"
)

// Router routes one recognized utterance to its handler.
type Router interface {
	Route(ctx context.Context, text string) error
}

// Config holds arbiter configuration.
type Config struct {
	DuckVolume int           // Playback volume while capturing speech
	FullVolume int           // Playback volume restored after the session
	Cooldown   time.Duration // Delay before the busy flag clears, absorbs echo noise
}

func (c *Config) setDefaults() {
	if c.DuckVolume <= 0 {
		c.DuckVolume = 20
	}
	if c.FullVolume <= 0 {
		c.FullVolume = 100
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Second
	}
}

// Arbiter admits at most one command session at a time. Both trigger
// goroutines funnel into Handle; the busy flag is the system's only
// mutual-exclusion point, so admission uses an atomic compare-and-set
// rather than a check-then-set that two threads could race through.
type Arbiter struct {
	busy atomic.Bool

	engine  *playback.Engine
	router  Router
	capture voice.Capture
	speech  voice.Output
	chime   voice.Chime
	events  *notify.Manager

	config Config
}

// NewArbiter creates a session arbiter. events may be nil.
func NewArbiter(engine *playback.Engine, router Router, capture voice.Capture, speech voice.Output, chime voice.Chime, events *notify.Manager, cfg Config) *Arbiter {
	cfg.setDefaults()
	return &Arbiter{
		engine:  engine,
		router:  router,
		capture: capture,
		speech:  speech,
		chime:   chime,
		events:  events,
		config:  cfg,
	}
}

// Run consumes triggers from one source until the context is cancelled or
// the source is exhausted. Each source gets its own Run goroutine; a
// transient wait failure is logged and the loop continues, but a source
// reporting EOF has closed for good and retrying it would only spin.
func (a *Arbiter) Run(ctx context.Context, src TriggerSource) {
	for {
		ev, err := src.WaitForTrigger(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				zlog.Info().Msg("session: trigger source closed, stopping")
				return
			}
			zlog.Warn().Msgf("session: trigger wait failed: err=%v", err)
			continue
		}
		a.Handle(ctx, ev)
	}
}

// Handle runs one session for the trigger event. Returns false when the
// event was discarded because a session is already in flight; overlapping
// triggers are dropped, never queued.
func (a *Arbiter) Handle(ctx context.Context, ev TriggerEvent) bool {
	if !a.busy.CompareAndSwap(false, true) {
		zlog.Debug().Msgf("session: trigger dropped, session in flight: source=%s", ev.Source)
		return false
	}
	defer a.release()

	sess := newSession(ev.Source)
	zlog.Info().Msgf("session: started: session_id=%s source=%s", sess.ID, sess.Source)
	go a.events.Publish(notify.Event{Type: notify.EventSessionStarted, Detail: sess.ID})
	defer func() {
		go a.events.Publish(notify.Event{Type: notify.EventSessionEnded, Detail: sess.ID})
	}()

	a.chime.Play(voice.ChimeSuccess)

	// Duck while the microphone is open so playback does not drown the
	// user out. Every exit path below restores before the flag clears.
	ducked := false
	if a.engine.State() == playback.StatePlaying {
		if err := a.engine.SetVolume(a.config.DuckVolume); err != nil {
			zlog.Error().Msgf("session: failed to duck volume: err=%v", err)
		} else {
			ducked = true
		}
	}
	restore := func() {
		if !ducked {
			return
		}
		ducked = false
		if err := a.engine.SetVolume(a.config.FullVolume); err != nil {
			zlog.Error().Msgf("session: failed to restore volume: err=%v", err)
		}
	}

	text, err := a.capture.Capture(ctx)
	if err != nil {
		zlog.Warn().Msgf("session: capture failed: session_id=%s err=%v", sess.ID, err)
		a.chime.Play(voice.ChimeError)
		restore()
		return true
	}
	if strings.TrimSpace(text) == "" {
		zlog.Debug().Msgf("session: empty capture, aborting: session_id=%s", sess.ID)
		restore()
		return true
	}

	if a.mustStopMusicFirst(text) {
		zlog.Info().Msgf("session: refusing command while music plays: session_id=%s", sess.ID)
		if err := a.speech.Speak(ctx, "Music is playing. Say stop music first."); err != nil {
			zlog.Warn().Msgf("session: refusal prompt failed: err=%v", err)
		}
		restore()
		return true
	}

	if err := a.router.Route(ctx, text); err != nil {
		zlog.Error().Msgf("session: handler failed: session_id=%s err=%v", sess.ID, err)
	}

	restore()
	return true
}

// release clears the busy flag after a cooldown. Sensor echo right after a
// spoken interaction would otherwise immediately retrigger a session.
func (a *Arbiter) release() {
	time.Sleep(a.config.Cooldown)
	a.busy.Store(false)
}

// mustStopMusicFirst reports whether the command has to be refused because
// playback is active and the utterance is unrelated to controlling it.
// Ducked audio corrupts unrelated interactions, so anything that is not a
// stop/resume request and does not mention songs or music is rejected.
func (a *Arbiter) mustStopMusicFirst(text string) bool {
	if a.engine.State() != playback.StatePlaying {
		return false
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "stop") || strings.Contains(lower, "resume") {
		return false
	}
	for _, word := range strings.Fields(lower) {
		if word == "song" || word == "music" {
			return false
		}
	}
	return true
}
