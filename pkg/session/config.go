package session

import (
	"errors"
	"log/slog"
	"time"
)

// NoSpeechPolicy decides what happens when the no-speech timeout elapses
// without any partial result.
type NoSpeechPolicy int

const (
	// NoSpeechRestart silently restarts capture to keep the session alive.
	NoSpeechRestart NoSpeechPolicy = iota

	// NoSpeechEnd surfaces the error and ends the session.
	NoSpeechEnd
)

// Timing defaults, tuned for responsiveness over accuracy.
const (
	// DefaultSilenceWindow is the quiet period after the last partial
	// result that commits the utterance.
	DefaultSilenceWindow = 1400 * time.Millisecond

	// DefaultForceCommitAfter is the unconditional ceiling from the first
	// meaningful partial result, so a recognizer that never reports a
	// final result cannot stall the loop.
	DefaultForceCommitAfter = 3 * time.Second

	// DefaultNoSpeechTimeout is the silence allowed before any partial
	// result at all.
	DefaultNoSpeechTimeout = 8 * time.Second

	// DefaultSpeakingWatchdog bounds how long the session waits for a
	// synthesis completion signal.
	DefaultSpeakingWatchdog = 10 * time.Second

	// DefaultBackendTimeout bounds each backend round-trip.
	DefaultBackendTimeout = 15 * time.Second

	// DefaultRetryDelay is the base delay before re-entering listening
	// after a recoverable failure (grows linearly with consecutive
	// failures).
	DefaultRetryDelay = 500 * time.Millisecond
)

// Behavior defaults.
const (
	// DefaultHistoryLimit caps conversation history at 5 turns.
	DefaultHistoryLimit = 10

	// DefaultMinUtteranceRunes is the minimum partial-result length that
	// counts as meaningful speech.
	DefaultMinUtteranceRunes = 4

	// DefaultMaxBackendFailures ends the session after this many
	// consecutive backend failures.
	DefaultMaxBackendFailures = 3
)

// Config holds all tunable parameters for a voice session.
type Config struct {
	// Language is the BCP-47-ish language tag passed to capture,
	// synthesis, and the backend (e.g. "en", "hi").
	Language string

	// Timing windows. See the Default* constants.
	SilenceWindow    time.Duration
	ForceCommitAfter time.Duration
	NoSpeechTimeout  time.Duration
	SpeakingWatchdog time.Duration
	BackendTimeout   time.Duration
	RetryDelay       time.Duration

	// HistoryLimit is the maximum history entries kept and sent to the
	// backend. Must be even (user/assistant pairs).
	HistoryLimit int

	// MinUtteranceRunes is the partial-result length that arms the
	// force-commit timer.
	MinUtteranceRunes int

	// NoSpeechPolicy selects restart-vs-end behavior on silence.
	NoSpeechPolicy NoSpeechPolicy

	// MaxBackendFailures is the consecutive-failure budget before the
	// session gives up. Any success resets the count.
	MaxBackendFailures int

	// Events receives session events. Defaults to NopSink.
	Events EventSink

	// Logger for session logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Language:           "en",
		SilenceWindow:      DefaultSilenceWindow,
		ForceCommitAfter:   DefaultForceCommitAfter,
		NoSpeechTimeout:    DefaultNoSpeechTimeout,
		SpeakingWatchdog:   DefaultSpeakingWatchdog,
		BackendTimeout:     DefaultBackendTimeout,
		RetryDelay:         DefaultRetryDelay,
		HistoryLimit:       DefaultHistoryLimit,
		MinUtteranceRunes:  DefaultMinUtteranceRunes,
		NoSpeechPolicy:     NoSpeechRestart,
		MaxBackendFailures: DefaultMaxBackendFailures,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Language == "" {
		return errors.New("session: language required")
	}
	if c.SilenceWindow <= 0 || c.ForceCommitAfter <= 0 || c.NoSpeechTimeout <= 0 ||
		c.SpeakingWatchdog <= 0 || c.BackendTimeout <= 0 || c.RetryDelay <= 0 {
		return errors.New("session: all timing windows must be positive")
	}
	if c.SilenceWindow >= c.ForceCommitAfter {
		return errors.New("session: silence window must be shorter than force-commit ceiling")
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit%2 != 0 {
		return errors.New("session: history limit must be a positive even number")
	}
	if c.MinUtteranceRunes < 1 {
		return errors.New("session: minimum utterance length must be at least 1")
	}
	if c.MaxBackendFailures < 1 {
		return errors.New("session: backend failure budget must be at least 1")
	}
	return nil
}
