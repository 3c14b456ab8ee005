package domain

import "fmt"

type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Msg)
}

type ProviderErrorKind string

const (
	ProviderTransport ProviderErrorKind = "transport"
	ProviderAuth      ProviderErrorKind = "auth"
	ProviderAPI       ProviderErrorKind = "api"
	ProviderMalformed ProviderErrorKind = "malformed"
)

type ProviderError struct {
	Kind       ProviderErrorKind
	Model      string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s error (model %s, status %d): %v", e.Kind, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s error (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ParseError reports model output that does not have the expected shape.
type ParseError struct {
	Stage  string
	Reason string
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Stage, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
