// Package spotify provides the Spotify Connect speaker mode. When enabled,
// the device presents itself as a playback target and Spotify takes over
// the speaker until the mode is turned off again.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Client controls Spotify playback transfer to the local device.
type Client struct {
	client     *spotify.Client
	deviceName string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// DeviceName is the Spotify Connect name the local audio daemon
	// registers itself under (e.g. the raspotify device name).
	DeviceName string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}
	if cfg.DeviceName == "" {
		return nil, errors.New("spotify device name is required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
		),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := auth.Client(ctx, token)

	return &Client{
		client:     spotify.New(httpClient),
		deviceName: cfg.DeviceName,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// EnableSpeakerMode transfers Spotify playback to the local device.
func (c *Client) EnableSpeakerMode(ctx context.Context) error {
	id, err := c.findDevice(ctx)
	if err != nil {
		return err
	}

	err = c.retry(func() error {
		return c.client.TransferPlayback(ctx, id, true)
	})
	if err != nil {
		return errors.Wrap(err, "failed to transfer playback")
	}

	zlog.Info().Msgf("spotify: speaker mode enabled: device=%s", c.deviceName)
	return nil
}

// DisableSpeakerMode pauses Spotify playback on the local device, handing
// the speaker back to the assistant.
func (c *Client) DisableSpeakerMode(ctx context.Context) error {
	err := c.retry(func() error {
		return c.client.Pause(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "failed to pause spotify playback")
	}

	zlog.Info().Msgf("spotify: speaker mode disabled: device=%s", c.deviceName)
	return nil
}

// findDevice resolves the configured device name to its Connect ID.
func (c *Client) findDevice(ctx context.Context) (spotify.ID, error) {
	var devices []spotify.PlayerDevice
	err := c.retry(func() error {
		d, err := c.client.PlayerDevices(ctx)
		if err != nil {
			return err
		}
		devices = d
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to list playback devices")
	}

	for _, d := range devices {
		if strings.EqualFold(d.Name, c.deviceName) {
			return d.ID, nil
		}
	}
	return "", errors.Newf("spotify device %q not found; is the connect daemon running?", c.deviceName)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
