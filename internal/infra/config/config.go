// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the assistant configuration.
type Config struct {
	Music    MusicConfig              `yaml:"music"`
	Playback PlaybackConfig           `yaml:"playback"`
	Session  SessionConfig            `yaml:"session"`
	Router   RouterConfig             `yaml:"router"`
	Triggers map[string]TriggerConfig `yaml:"triggers"`
	OpenAI   OpenAIConfig             `yaml:"openai"`
	Spotify  SpotifyConfig            `yaml:"spotify"`
	News     NewsConfig               `yaml:"news"`
	Weather  WeatherConfig            `yaml:"weather"`
	Logger   LoggerConfig             `yaml:"logger"`
}

// MusicConfig represents the local music library configuration.
type MusicConfig struct {
	Directory string `yaml:"directory" validate:"required"`
	Shuffle   bool   `yaml:"shuffle"`
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	StartAttempts  int `yaml:"start_attempts" default:"3" validate:"gte=1,lte=10"`
	RetryDelayMs   int `yaml:"retry_delay_ms" default:"200" validate:"gte=0,lte=5000"`
	AnnounceVolume int `yaml:"announce_volume" default:"20" validate:"gte=0,lte=100"`
	FullVolume     int `yaml:"full_volume" default:"100" validate:"gte=1,lte=100"`
}

// RetryDelay returns the delay between track start attempts.
func (c PlaybackConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// SessionConfig represents command session configuration.
type SessionConfig struct {
	DuckVolume int `yaml:"duck_volume" default:"20" validate:"gte=0,lte=100"`
	CooldownMs int `yaml:"cooldown_ms" default:"1000" validate:"gte=0,lte=10000"`
}

// Cooldown returns the delay before a new session may be admitted.
func (c SessionConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// RouterConfig represents command routing configuration.
type RouterConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" default:"0.7" validate:"gte=0,lte=1"`
}

// TriggerConfig represents a single trigger source configuration. Settings
// are source-specific and decoded by the source itself.
type TriggerConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// OpenAIConfig represents OpenAI API configuration.
type OpenAIConfig struct {
	APIKey    string `yaml:"api_key" validate:"required"`
	ChatModel string `yaml:"chat_model" default:"gpt-4o-mini"`
	TTSModel  string `yaml:"tts_model" default:"tts-1"`
	Voice     string `yaml:"voice" default:"shimmer"`
}

// SpotifyConfig represents the optional Spotify speaker mode configuration.
type SpotifyConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	DeviceName   string `yaml:"device_name"`
}

// NewsConfig represents the news headlines configuration.
type NewsConfig struct {
	APIKey  string `yaml:"api_key"`
	Country string `yaml:"country" default:"us" validate:"omitempty,len=2"`
}

// WeatherConfig represents the weather report configuration.
type WeatherConfig struct {
	APIKey string `yaml:"api_key"`
	City   string `yaml:"city"`
	Units  string `yaml:"units" default:"metric" validate:"omitempty,oneof=metric imperial"`
}

// LoggerConfig represents logger configuration.
type LoggerConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for API credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		c.News.APIKey = v
	}
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		c.Weather.APIKey = v
	}
}

// IsTriggerEnabled checks if a trigger source is enabled.
func (c *Config) IsTriggerEnabled(name string) bool {
	if t, ok := c.Triggers[name]; ok {
		return t.Enabled
	}
	return false
}

// TriggerSettings returns the settings for a trigger source.
func (c *Config) TriggerSettings(name string) map[string]any {
	if t, ok := c.Triggers[name]; ok {
		return t.Settings
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Spotify credentials are only required when speaker mode is on
	if c.Spotify.Enabled {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify is enabled but client_id, client_secret or refresh_token is missing")
		}
		if c.Spotify.DeviceName == "" {
			return errors.New("spotify is enabled but device_name is missing")
		}
	}

	// A weather key without a city has nowhere to look up
	if c.Weather.APIKey != "" && c.Weather.City == "" {
		return errors.New("weather api_key is set but city is missing")
	}

	return nil
}
