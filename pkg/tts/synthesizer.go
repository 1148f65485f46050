package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranaai/go-kirana/pkg/speech"
)

// Synthesizer adapts a Provider and a Player into a speech.Synthesizer
// for hosts that play server-rendered audio instead of device TTS.
//
// When the player only enqueues audio and cannot report playback
// completion, Speak waits out the duration estimate so that callers still
// observe a completion signal.
type Synthesizer struct {
	provider Provider
	player   Player
	logger   *slog.Logger

	// PlayerSignalsCompletion is true when Play blocks until playback
	// finishes. False makes Speak wait the estimated duration instead.
	PlayerSignalsCompletion bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(provider Provider, player Player, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		provider: provider,
		player:   player,
		logger:   logger.With("component", "tts.synthesizer"),
	}
}

// Speak implements speech.Synthesizer.
func (s *Synthesizer) Speak(ctx context.Context, text, language string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	result, err := s.provider.Synthesize(ctx, text, language)
	if err != nil {
		return &speech.SynthesisError{Message: err.Error()}
	}

	if err := s.player.Play(ctx, result.Audio); err != nil {
		if ctx.Err() != nil {
			return speech.ErrInterrupted
		}
		return &speech.SynthesisError{Message: err.Error()}
	}

	if !s.PlayerSignalsCompletion {
		select {
		case <-time.After(result.Duration):
		case <-ctx.Done():
			return speech.ErrInterrupted
		}
	}

	s.logger.Debug("playback complete",
		"chars", len(text),
		"duration_ms", result.Duration.Milliseconds(),
		"cached", result.Cached,
	)
	return nil
}

// Stop implements speech.Synthesizer. Cancels in-flight synthesis and
// playback waits; idempotent.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Ensure Synthesizer implements speech.Synthesizer.
var _ speech.Synthesizer = (*Synthesizer)(nil)
