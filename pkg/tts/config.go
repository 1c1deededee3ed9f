package tts

import (
	"log/slog"
	"time"
)

// Narration defaults. An utterance that is not ready within the timeout is
// stale: the scene it describes has moved on.
const (
	DefaultTimeout    = 15 * time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = 100 * time.Millisecond
)

// Config holds the settings shared by providers.
type Config struct {
	APIKey  string
	BaseURL string // Overrides the hosted endpoint
	VoiceID string

	Format  Encoding      // Audio the provider should produce
	Timeout time.Duration // Per utterance

	Retries    int           // Extra attempts after a retryable failure
	RetryDelay time.Duration // Multiplied by the attempt number

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithAPIKey sets the API key for a hosted provider.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL points a hosted provider at another endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithVoice sets the voice ID.
func WithVoice(voiceID string) Option {
	return func(c *Config) {
		c.VoiceID = voiceID
	}
}

// WithFormat sets the audio encoding.
func WithFormat(format Encoding) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithTimeout bounds a single synthesis.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry sets how often and how patiently failed requests are retried.
func WithRetry(retries int, delay time.Duration) Option {
	return func(c *Config) {
		c.Retries = retries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// NewConfig returns the defaults with opts applied.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		VoiceID:    VoiceShimmer,
		Format:     EncodingMP3,
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
