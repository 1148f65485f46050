package speech

import (
	"errors"
	"fmt"
)

// Sentinel errors for the speech capability layer.
var (
	// ErrPermissionDenied indicates microphone or speech permission was
	// refused by the user or platform. Fatal to session start.
	ErrPermissionDenied = errors.New("speech: permission denied")

	// ErrUnsupportedRuntime indicates no speech capability is available on
	// this host. Fatal to session start.
	ErrUnsupportedRuntime = errors.New("speech: runtime not supported")

	// ErrNoDevice indicates no device is attached to the bridge, or the
	// device connection was lost. Fatal to session start.
	ErrNoDevice = errors.New("speech: no device attached")

	// ErrCaptureBusy indicates Start was called while capture is running.
	ErrCaptureBusy = errors.New("speech: capture already running")

	// ErrInterrupted indicates synthesis was cancelled before completion.
	ErrInterrupted = errors.New("speech: synthesis interrupted")
)

// IsFatal returns true for errors that should terminate the session
// rather than restart listening.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrUnsupportedRuntime) ||
		errors.Is(err, ErrNoDevice)
}

// RecognitionError is a platform-reported recognition failure.
// Recoverable; the session restarts listening.
type RecognitionError struct {
	// Code is the platform error code (e.g. "network", "audio-capture").
	Code string

	// Message is the human-readable detail.
	Message string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("speech: recognition error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("speech: recognition error [%s]", e.Code)
}

// SynthesisError is a playback failure. Recoverable; the content is
// dropped and the session falls back to listening.
type SynthesisError struct {
	Message string
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech: synthesis error: %s", e.Message)
}
