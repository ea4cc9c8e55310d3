// Package console provides keyboard stand-ins for the microphone and the
// trigger sensors, used for development on machines without the device
// hardware.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/session"
	"github.com/a3ro-dev/FAM/internal/app/voice"
)

// Settings represents the console trigger settings.
type Settings struct {
	Prompt string `mapstructure:"prompt" default:"> "`
	// Source labels triggers as wakeword or gesture for the session log.
	Source string `mapstructure:"source" default:"wakeword" validate:"oneof=wakeword gesture"`
}

// decodeSettings decodes and validates the raw trigger settings.
func decodeSettings(raw map[string]any) (Settings, error) {
	var s Settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &s,
		TagName: "mapstructure",
	})
	if err != nil {
		return Settings{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return Settings{}, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return Settings{}, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return Settings{}, errors.Wrap(err, "validation failed")
	}
	return s, nil
}

// Console reads lines from one input stream. The first line of an exchange
// acts as both the trigger and the captured utterance; follow-up captures
// within the same session read further lines.
type Console struct {
	settings Settings
	source   session.TriggerKind
	out      io.Writer

	lines   chan string
	pending chan string
}

// New creates a console from raw trigger settings, reading stdin.
func New(raw map[string]any) (*Console, error) {
	settings, err := decodeSettings(raw)
	if err != nil {
		return nil, err
	}

	source := session.TriggerWakeWord
	if settings.Source == "gesture" {
		source = session.TriggerGesture
	}

	c := &Console{
		settings: settings,
		source:   source,
		out:      os.Stdout,
		lines:    make(chan string),
		pending:  make(chan string, 1),
	}
	go c.readLoop(os.Stdin)
	return c, nil
}

func (c *Console) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.lines <- strings.TrimSpace(scanner.Text())
	}
	close(c.lines)
}

// WaitForTrigger blocks until a line is typed. The line is held back for
// the session's first capture.
func (c *Console) WaitForTrigger(ctx context.Context) (session.TriggerEvent, error) {
	fmt.Fprint(c.out, c.settings.Prompt)

	select {
	case <-ctx.Done():
		return session.TriggerEvent{}, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return session.TriggerEvent{}, errors.Wrap(io.EOF, "console input closed")
		}
		// drop a stale held line from an aborted session
		select {
		case <-c.pending:
		default:
		}
		c.pending <- line
		return session.TriggerEvent{Source: c.source, At: time.Now()}, nil
	}
}

// Capture returns the line that triggered the session, or reads a new line
// for follow-up prompts.
func (c *Console) Capture(ctx context.Context) (string, error) {
	select {
	case line := <-c.pending:
		return line, nil
	default:
	}

	fmt.Fprint(c.out, c.settings.Prompt)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", errors.Wrap(io.EOF, "console input closed")
		}
		return line, nil
	}
}

// Output prints spoken text instead of synthesizing it.
type Output struct{}

// Speak writes the text to stdout.
func (Output) Speak(ctx context.Context, text string) error {
	fmt.Println("[speak]", text)
	return nil
}

// Chime logs chimes instead of playing tones.
type Chime struct{}

// Play logs the chime kind.
func (Chime) Play(kind voice.ChimeKind) {
	zlog.Info().Msgf("console: chime: kind=%s", kind)
}
