package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxSpeechChunk is the data channel payload limit for speech audio.
	MaxSpeechChunk = 6000

	// MaxBridgeMessage is the per-message read limit on the media bridge.
	MaxBridgeMessage = 64 * 1024

	// MaxResponseBody is the absolute maximum read from an HTTP response.
	MaxResponseBody = 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateSpeechChunk validates a speech chunk against MaxSpeechChunk.
func ValidateSpeechChunk(chunk []byte) error {
	if len(chunk) == 0 {
		return ErrMessageEmpty
	}
	if len(chunk) > MaxSpeechChunk {
		return fmt.Errorf("%w: speech chunk size %d exceeds limit %d", ErrMessageTooLarge, len(chunk), MaxSpeechChunk)
	}
	return nil
}
