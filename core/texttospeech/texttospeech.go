// Package texttospeech defines the synthesis contract used by the speech
// players. Providers turn one chunk of text into raw PCM audio; ordering
// across chunks is the player's job.
package texttospeech

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the synthesis service rejected the
	// configured credentials.
	ErrUnauthorized = errors.New("speech service rejected credentials")
	// ErrEmptyAudio indicates the service returned no audio for a chunk.
	ErrEmptyAudio = errors.New("speech service returned no audio")
)

// StatusError is a non-success response from a synthesis service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("speech service returned status %d: %s", e.Code, e.Body)
}

// Synthesizer converts text to mono 16-bit PCM at 16 kHz, ready for the
// playback sink.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Stability presets trade expressiveness against consistency.
const (
	StabilityCreative float64 = 0.0
	StabilityNatural  float64 = 0.5
	StabilityRobust   float64 = 1.0
)

type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	// Speed is optional; nil leaves the provider default.
	Speed *float64
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       StabilityNatural,
		SimilarityBoost: 0.75,
		Style:           0,
	}
}
