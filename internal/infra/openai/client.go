// Package openai provides the AI conversation and text-to-speech client.
package openai

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	zlog "github.com/rs/zerolog/log"
)

// systemPrompt keeps answers short enough to be spoken out loud.
const systemPrompt = "You are FAM, a home voice assistant. " +
	"Answer in one or two short sentences suitable for being read aloud. " +
	"Do not use markdown, lists or code."

// PlayFunc plays MP3 audio to completion.
type PlayFunc func(ctx context.Context, r io.ReadCloser) error

// Config represents OpenAI client configuration.
type Config struct {
	APIKey    string
	ChatModel string
	TTSModel  string
	Voice     string
}

// Client wraps the OpenAI API for free-form answers and speech synthesis.
type Client struct {
	client openai.Client
	config Config
	play   PlayFunc
}

// New creates a new OpenAI client. play renders synthesized speech; it may
// be nil, in which case Speak only logs the text.
func New(cfg Config, play PlayFunc) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "shimmer"
	}

	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		config: cfg,
		play:   play,
	}, nil
}

// Respond answers free-form text with a short spoken-style reply.
func (c *Client) Respond(ctx context.Context, text string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.config.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		MaxTokens: openai.Int(150),
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("chat completion returned an empty reply")
	}
	return reply, nil
}

// Speak synthesizes text and plays it to completion.
func (c *Client) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.play == nil {
		zlog.Info().Msgf("speak (no audio output): %s", text)
		return nil
	}

	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(c.config.TTSModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(c.config.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return errors.Wrap(err, "speech synthesis failed")
	}

	return c.play(ctx, resp.Body)
}
