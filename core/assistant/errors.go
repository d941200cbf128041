package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates the gateway URL or model is unusable.
	ErrInvalidConfig = errors.New("invalid assistant configuration")
	// ErrUnauthorized indicates the gateway rejected the credentials.
	ErrUnauthorized = errors.New("assistant gateway rejected credentials")
	// ErrRateLimited indicates the gateway asked us to back off.
	ErrRateLimited = errors.New("assistant gateway rate limited the request")
)

// ServerError is a 5xx response from the gateway.
type ServerError struct {
	Code int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("assistant gateway returned server error %d", e.Code)
}

// NetworkError wraps a transport-level failure reaching the gateway.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to reach assistant gateway: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodingError indicates a response body was not valid JSON.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode assistant response: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

func statusError(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code == 429:
		return ErrRateLimited
	case code >= 500:
		return &ServerError{Code: code}
	default:
		return fmt.Errorf("assistant gateway returned status %d", code)
	}
}
