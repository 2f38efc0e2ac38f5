// Package limits provides centralized size constants and validation
// functions so every component bounds untrusted input the same way.
//
// # Size Hierarchy
//
//   - MaxSpeechChunk (6000 bytes): the largest speech chunk sent over the
//     meeting data channel to the rendering backend.
//
//   - MaxBridgeMessage (64 KiB): the read limit for a single message from
//     the websocket media bridge.
//
//   - MaxResponseBody (1 MiB): the absolute maximum read from any HTTP
//     response. Larger bodies are truncated and treated as malformed.
//
// # Validation Functions
//
// Each validation function checks for empty input and size violations:
//
//	if err := limits.ValidateSpeechChunk(chunk); err != nil {
//	    return err
//	}
//
// Errors wrap ErrMessageEmpty or ErrMessageTooLarge for errors.Is checks.
package limits
