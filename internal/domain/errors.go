package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchInProgress is returned when a batch is submitted while another runs
	ErrBatchInProgress = errors.New("a batch is already being processed")

	// ErrRetriesExhausted is returned when rate limiting outlasts the retry budget
	ErrRetriesExhausted = errors.New("rate limit retries exhausted")

	// ErrEmptyPayload is returned when a media item carries no bytes
	ErrEmptyPayload = errors.New("media payload is empty")

	// ErrUnsupportedMedia is returned when a backend cannot handle a media kind
	ErrUnsupportedMedia = errors.New("unsupported media kind")

	// ErrMissingCredential is returned when no provider credential is available
	ErrMissingCredential = errors.New("no API credential configured")
)

// ConfigurationError reports a call that cannot be attempted as configured
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProviderError is a non-2xx response from an inference provider
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Message)
}

// MalformedResponseError is a successful call whose content is unusable
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return "malformed model response: " + e.Reason
}

// NewConfigurationError wraps err as a ConfigurationError
func NewConfigurationError(reason string, err error) error {
	return &ConfigurationError{Reason: reason, Err: err}
}

// IsConfigurationError reports whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsMalformedResponse reports whether err is a MalformedResponseError
func IsMalformedResponse(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}
