package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for contract violations. Match them with errors.Is.
var (
	// ErrEmptyConversation is returned when an operation needs a user turn and none exists.
	ErrEmptyConversation = errors.New("conversation has no user turn")
	// ErrUnknownProvider is returned when a provider id is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingCredential is returned when a selection carries an empty credential.
	ErrMissingCredential = errors.New("credential is required")
)

// ConfigurationError reports a selection that cannot produce a usable adapter:
// a missing credential, an unknown provider or a client that failed to build.
// It is shown to the user outside the transcript.
type ConfigurationError struct {
	Provider ProviderID
	Err      error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failed vendor call (network, auth, quota, rejected request).
// Its message is the vendor error text, unchanged, so it can be shown in the transcript.
type TransportError struct {
	Provider ProviderID
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a vendor response that lacks the expected reply field.
type DecodeError struct {
	Provider ProviderID
	Reason   string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("unexpected %s response: %s", e.Provider, e.Reason)
}

// ErrorKind classifies a per-turn failure for logging and the journal.
func ErrorKind(err error) string {
	var transportErr *TransportError
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &decodeErr):
		return "decode"
	default:
		return "encode"
	}
}
