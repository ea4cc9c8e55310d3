// Package voice defines the narrow contracts for the speech and audio
// collaborators consumed by the session arbiter, router and playback engine.
// Implementations live under internal/infra.
package voice

import "context"

// ChimeKind selects which acknowledgement sound to play.
type ChimeKind int

const (
	ChimeSuccess ChimeKind = iota
	ChimeError
	ChimeLoad
)

// String returns the string representation of the chime kind.
func (k ChimeKind) String() string {
	switch k {
	case ChimeSuccess:
		return "success"
	case ChimeError:
		return "error"
	case ChimeLoad:
		return "load"
	default:
		return "unknown"
	}
}

// Capture records one spoken utterance and transcribes it. It blocks until
// the collaborator returns or the context is cancelled. An empty string with
// a nil error means nothing intelligible was heard.
type Capture interface {
	Capture(ctx context.Context) (string, error)
}

// Output synthesizes text and plays it. Blocking: the call returns only
// after the audio has finished playing.
type Output interface {
	Speak(ctx context.Context, text string) error
}

// Chime plays a short acknowledgement sound.
type Chime interface {
	Play(kind ChimeKind)
}

// AIChat answers a free-form utterance that matched no command phrase.
type AIChat interface {
	Respond(ctx context.Context, text string) (string, error)
}
