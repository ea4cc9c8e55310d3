package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/playback"
	"github.com/a3ro-dev/FAM/internal/app/tasks"
	"github.com/a3ro-dev/FAM/internal/app/voice"
	"github.com/a3ro-dev/FAM/internal/domain/playlist"
)

// MusicCommands binds the music phrases to the playback engine. Errors the
// engine reports (NotFound, validation) are translated into spoken messages
// here; transient device errors never surface this far.
type MusicCommands struct {
	Engine *playback.Engine
	Speech voice.Output
}

// PlayMusic starts playback of the queue.
func (m *MusicCommands) PlayMusic(ctx context.Context, text string) error {
	if err := m.Engine.Play(); err != nil {
		return err
	}
	return m.Speech.Speak(ctx, "Playing music.")
}

// PlayNamed plays a specific track named after the word "play". When no
// name follows, it behaves like PlayMusic.
func (m *MusicCommands) PlayNamed(ctx context.Context, text string) error {
	name := extractAfter(text, "play")
	if name == "" || name == "music" || name == "a song" || name == "song" {
		return m.PlayMusic(ctx, text)
	}

	err := m.Engine.PlaySpecific(name)
	if errors.Is(err, playlist.ErrNoMatch) {
		return m.Speech.Speak(ctx, fmt.Sprintf("I could not find a song called %s.", name))
	}
	if err != nil {
		return err
	}
	return nil
}

// Pause pauses playback.
func (m *MusicCommands) Pause(ctx context.Context, text string) error {
	if err := m.Speech.Speak(ctx, "Pausing music."); err != nil {
		zlog.Warn().Msgf("command: pause ack failed: err=%v", err)
	}
	m.Engine.Pause()
	return nil
}

// Resume resumes paused playback.
func (m *MusicCommands) Resume(ctx context.Context, text string) error {
	if err := m.Speech.Speak(ctx, "Resuming music."); err != nil {
		zlog.Warn().Msgf("command: resume ack failed: err=%v", err)
	}
	m.Engine.Resume()
	return nil
}

// Stop stops playback entirely.
func (m *MusicCommands) Stop(ctx context.Context, text string) error {
	if err := m.Speech.Speak(ctx, "Stopping music."); err != nil {
		zlog.Warn().Msgf("command: stop ack failed: err=%v", err)
	}
	m.Engine.Stop()
	return nil
}

// Next skips to the following track.
func (m *MusicCommands) Next(ctx context.Context, text string) error {
	if err := m.Speech.Speak(ctx, "Playing next track."); err != nil {
		zlog.Warn().Msgf("command: next ack failed: err=%v", err)
	}
	m.Engine.Next()
	return nil
}

// SeekForward advances playback by ten seconds.
func (m *MusicCommands) SeekForward(ctx context.Context, text string) error {
	const step = 10 * time.Second

	if err := m.Engine.SeekForward(step); err != nil {
		if errors.Is(err, playback.ErrInvalidSeek) {
			return m.Speech.Speak(ctx, "Invalid seek time.")
		}
		return err
	}
	return m.Speech.Speak(ctx, "Seeking forward by 10 seconds.")
}

// TaskCommands binds the task phrases to the task list. Both commands run
// a follow-up capture round-trip within the session.
type TaskCommands struct {
	Tasks   *tasks.Manager
	Capture voice.Capture
	Speech  voice.Output
}

// Add prompts for a task and stores it.
func (t *TaskCommands) Add(ctx context.Context, text string) error {
	if err := t.Speech.Speak(ctx, "Please provide the task."); err != nil {
		return err
	}

	name, err := t.Capture.Capture(ctx)
	if err != nil {
		return errors.Wrap(err, "task capture failed")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return t.Speech.Speak(ctx, "I did not catch a task.")
	}

	t.Tasks.Add(name)
	return t.Speech.Speak(ctx, fmt.Sprintf("Adding task: %s.", name))
}

// Search prompts for a task name and reads back the closest match.
func (t *TaskCommands) Search(ctx context.Context, text string) error {
	if err := t.Speech.Speak(ctx, "Please provide the task to search for."); err != nil {
		return err
	}

	query, err := t.Capture.Capture(ctx)
	if err != nil {
		return errors.Wrap(err, "task capture failed")
	}

	match, err := t.Tasks.Search(query)
	if errors.Is(err, tasks.ErrNoMatch) {
		return t.Speech.Speak(ctx, "No matching task found.")
	}
	if err != nil {
		return err
	}
	return t.Speech.Speak(ctx, fmt.Sprintf("Found task: %s.", match.Name))
}

// extractAfter returns the text following the first occurrence of word,
// trimmed. Empty when the word is absent or final.
func extractAfter(text, word string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, word)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(lower[idx+len(word):])
}
