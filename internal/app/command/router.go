package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/a3ro-dev/FAM/internal/app/voice"
)

// defaultFuzzyThreshold is the minimum similarity for the fuzzy phrase
// fallback.
const defaultFuzzyThreshold = 0.7

// Config holds router configuration.
type Config struct {
	FuzzyThreshold float64 // Minimum similarity for the fuzzy fallback
}

// Router maps recognized text to a handler: first substring match in table
// order, then a confirmed fuzzy match, then the free-form AI fallback. The
// router is stateless beyond the static table.
type Router struct {
	table   Table
	capture voice.Capture
	speech  voice.Output
	ai      voice.AIChat

	threshold float64
	metric    *metrics.Levenshtein
}

// NewRouter creates a command router.
func NewRouter(table Table, capture voice.Capture, speech voice.Output, ai voice.AIChat, cfg Config) *Router {
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}
	return &Router{
		table:     table,
		capture:   capture,
		speech:    speech,
		ai:        ai,
		threshold: threshold,
		metric:    metrics.NewLevenshtein(),
	}
}

// Route dispatches one utterance. First-match policy: the table's
// descending-length order is what gives specific phrases priority, the walk
// itself stops at the first phrase contained in the text.
func (r *Router) Route(ctx context.Context, text string) error {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return nil
	}

	for _, e := range r.table.entries {
		if strings.Contains(norm, e.Phrase) {
			zlog.Debug().Msgf("router: matched phrase: phrase=%q text=%q", e.Phrase, norm)
			return e.Handler(ctx, norm)
		}
	}

	if e, score, ok := r.bestFuzzy(norm); ok {
		zlog.Info().Msgf("router: fuzzy candidate: phrase=%q score=%.2f text=%q", e.Phrase, score, norm)
		confirmed, err := r.confirm(ctx, e.Phrase)
		if err != nil {
			zlog.Warn().Msgf("router: confirmation failed: err=%v", err)
		}
		if confirmed {
			return e.Handler(ctx, norm)
		}
	}

	return r.fallbackToAI(ctx, text)
}

// bestFuzzy returns the single best fuzzy match at or above the threshold.
func (r *Router) bestFuzzy(norm string) (Entry, float64, bool) {
	var best Entry
	bestScore := 0.0
	for _, e := range r.table.entries {
		score := strutil.Similarity(norm, e.Phrase, r.metric)
		if score > bestScore {
			bestScore = score
			best = e
		}
	}
	if bestScore < r.threshold {
		return Entry{}, 0, false
	}
	return best, bestScore, true
}

// confirm runs the yes/no round-trip for a fuzzy candidate. A capture that
// fails or comes back empty gets one retry; after that the caller falls
// through to the AI handler.
func (r *Router) confirm(ctx context.Context, phrase string) (bool, error) {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := r.speech.Speak(ctx, fmt.Sprintf("Did you mean %s? Yes or no.", phrase)); err != nil {
			return false, errors.Wrap(err, "confirmation prompt failed")
		}

		answer, err := r.capture.Capture(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer == "" {
			continue
		}
		return isAffirmative(answer), nil
	}
	return false, lastErr
}

// fallbackToAI forwards the raw, unnormalized text to the free-form AI
// handler and speaks its reply.
func (r *Router) fallbackToAI(ctx context.Context, text string) error {
	zlog.Info().Msgf("router: no phrase match, falling back to AI: text=%q", text)

	reply, err := r.ai.Respond(ctx, text)
	if err != nil {
		if speakErr := r.speech.Speak(ctx, "Sorry, I could not come up with an answer."); speakErr != nil {
			zlog.Warn().Msgf("router: apology failed: err=%v", speakErr)
		}
		return errors.Wrap(err, "AI fallback failed")
	}
	return r.speech.Speak(ctx, reply)
}

func isAffirmative(answer string) bool {
	for _, word := range strings.Fields(answer) {
		switch word {
		case "yes", "yeah", "yep", "sure", "correct", "right":
			return true
		}
	}
	return false
}
