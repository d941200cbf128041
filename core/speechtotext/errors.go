package speechtotext

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the transcription service rejected the
	// configured credentials.
	ErrUnauthorized = errors.New("transcription service rejected credentials")
	// ErrPermissionDenied indicates microphone access was not granted.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrBackendUnavailable indicates the selected variant cannot run in
	// this build or environment.
	ErrBackendUnavailable = errors.New("transcription backend unavailable")
	// ErrAlreadyRecording indicates Start was called while recording.
	ErrAlreadyRecording = errors.New("transcription already in progress")
)

// StatusError is a non-success response from a transcription service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription service returned status %d: %s", e.Code, e.Body)
}

// DecodingError indicates a response body could not be parsed.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode transcription response: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }
