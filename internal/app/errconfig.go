package app

import (
	"context"
	"errors"

	"github.com/felixbrock/promptopt/internal/domain"
)

type ErrCtx struct {
	Code  int
	Title string
	Msg   string
}

// ErrContext maps a run error to the exit code and headline the CLI shows.
func ErrContext(err error) ErrCtx {
	var configErr *domain.ConfigurationError
	var providerErr *domain.ProviderError
	var parseErr *domain.ParseError

	switch {
	case errors.Is(err, context.Canceled):
		return ErrCtx{Code: 130, Title: "Interrupted", Msg: err.Error()}
	case errors.As(err, &configErr):
		return ErrCtx{Code: 2, Title: "Configuration error", Msg: err.Error()}
	case errors.As(err, &providerErr):
		if providerErr.Kind == domain.ProviderAuth {
			return ErrCtx{Code: 3, Title: "Model provider rejected the API key", Msg: err.Error()}
		}
		return ErrCtx{Code: 3, Title: "Model provider error", Msg: err.Error()}
	case errors.As(err, &parseErr):
		return ErrCtx{Code: 4, Title: "Unexpected model output", Msg: err.Error()}
	case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrEmptyFeedback):
		return ErrCtx{Code: 5, Title: "Bad input", Msg: err.Error()}
	}

	return ErrCtx{Code: 1, Title: "Internal error", Msg: err.Error()}
}
