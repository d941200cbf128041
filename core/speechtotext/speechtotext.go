// Package speechtotext defines the transcription backend contract shared by
// the on-device, platform, realtime-socket, and batch-upload variants.
package speechtotext

import "context"

type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Backend is one transcription variant. The turn controller depends only on
// this interface; the concrete variant is selected by configuration.
//
// Start begins capturing and transcribing; it returns once the backend is
// recording. Stop forces the backend to finalize immediately (a manual
// end-of-utterance) and is safe to call from any goroutine. Reset returns
// the backend to idle and clears all transcript state.
//
// Callbacks registered through TranscriptionOptions fire from the backend's
// worker goroutines and must not block. The observable getters are polled by
// the live-update task while a turn is listening; they must be safe for
// concurrent use.
type Backend interface {
	Start(ctx context.Context, opts ...TranscriptionOption) error
	Stop()
	Reset()

	// DisplayText is the committed transcript plus the volatile partial.
	DisplayText() string
	// FinalTranscript is the finalized text; stable once State is stopped.
	FinalTranscript() string
	// Err reports a failure that prevented the backend from producing a
	// transcript; check it once State is stopped.
	Err() error
	AudioLevel() float32
	SilenceProgress() float64
	State() State
}
