package beepout

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/voice"
)

// Chime plays short generated tones to acknowledge interactions without a
// network round-trip. Tones are fire-and-forget and mix over playback.
type Chime struct{}

// NewChime initializes the speaker and returns a chime player.
func NewChime() (*Chime, error) {
	if err := initSpeaker(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	return &Chime{}, nil
}

// Play plays the tone sequence for the given kind.
func (c *Chime) Play(kind voice.ChimeKind) {
	var freqs []float64
	switch kind {
	case voice.ChimeSuccess:
		freqs = []float64{660, 880}
	case voice.ChimeError:
		freqs = []float64{330, 220}
	case voice.ChimeLoad:
		freqs = []float64{440}
	default:
		return
	}

	seq := make([]beep.Streamer, 0, len(freqs))
	for _, freq := range freqs {
		tone, err := generators.SineTone(sampleRate, freq)
		if err != nil {
			zlog.Warn().Msgf("chime: tone generation failed: kind=%s err=%v", kind, err)
			return
		}
		seq = append(seq, beep.Take(sampleRate.N(120*time.Millisecond), tone))
	}
	speaker.Play(beep.Seq(seq...))
}
