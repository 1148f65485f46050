// Package tts provides a client for the backend text-to-speech service
// and a local audio cache for frequently spoken phrases.
//
// The backend renders MP3 audio for a text + language pair using a fixed
// per-language voice table. Synthesis is the hot path of every
// conversation turn, so replies like "Done" or "Stock updated" are cached
// locally to avoid repeated round-trips.
package tts

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Per-language neural voices, mirrored from the backend voice table.
var voiceTable = map[string]string{
	"hi": "hi-IN-SwaraNeural",
	"te": "te-IN-ShrutiNeural",
	"ta": "ta-IN-PallaviNeural",
	"kn": "kn-IN-GaganNeural",
	"ml": "ml-IN-SobhanaNeural",
	"mr": "mr-IN-AarohiNeural",
	"gu": "gu-IN-DhwaniNeural",
	"bn": "bn-IN-TanishaaNeural",
	"pa": "pa-IN-OjasNeural",
	"en": "en-IN-NeerjaNeural",
}

const defaultVoice = "en-IN-NeerjaNeural"

// VoiceFor returns the neural voice for a language tag.
func VoiceFor(language string) string {
	if v, ok := voiceTable[language]; ok {
		return v
	}
	return defaultVoice
}

// The backend emits 48kbit/s mono MP3 (edge-tts default).
const mp3BytesPerSecond = 6000

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio is MP3 audio data.
	Audio []byte

	// Duration is the estimated playback duration.
	Duration time.Duration

	// Voice is the neural voice used.
	Voice string

	// Cached is true if the audio came from the local cache.
	Cached bool
}

// EstimateDuration estimates MP3 playback time from the byte count.
func EstimateDuration(audioBytes int) time.Duration {
	if audioBytes <= 0 {
		return 0
	}
	return time.Duration(audioBytes) * time.Second / mp3BytesPerSecond
}

// Conversational speech runs about 15 characters per second.
const speechCharsPerSecond = 15

// EstimateSpeechDuration estimates how long a device takes to speak the
// text aloud. Used when the runtime cannot signal playback completion.
// Never less than a second for non-empty text.
func EstimateSpeechDuration(text string) time.Duration {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return 0
	}
	d := time.Duration(n) * time.Second / speechCharsPerSecond
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Provider synthesizes speech audio for a text + language pair.
type Provider interface {
	Synthesize(ctx context.Context, text, language string) (*AudioResult, error)
}

// Player plays synthesized audio on the output device.
//
// Play blocks until playback completes when the device can signal it;
// devices that only enqueue audio return immediately and the caller waits
// out the duration estimate instead.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Sentinel errors for the tts package.
var (
	// ErrMissingBaseURL indicates the backend base URL was not provided.
	ErrMissingBaseURL = errors.New("tts: base URL is required")

	// ErrEmptyText indicates Synthesize was called with no text.
	ErrEmptyText = errors.New("tts: empty text")
)
