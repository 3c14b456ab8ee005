package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixbrock/promptopt/internal/domain"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-3.5-turbo",
	"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello there"}}],
	"usage": {"prompt_tokens": 1000, "completion_tokens": 2000, "total_tokens": 3000}
}`

func newTestRepo(t *testing.T, handler http.HandlerFunc) (*OAIRepo, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return NewOAIRepo(OAIConfig{ApiKey: "sk-test", BaseUrl: srv.URL}), &calls
}

func TestOAIRepoComplete(t *testing.T) {
	var got map[string]any

	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	})

	resp, err := repo.Complete(context.Background(), domain.Prompt{System: "be terse", User: "hi", Temperature: 0.3}, "gpt-3.5-turbo")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, int64(3000), resp.Usage.TotalTokens)
	assert.InDelta(t, 0.0035, resp.Usage.Cost, 1e-9)

	assert.Equal(t, "gpt-3.5-turbo", got["model"])
	assert.InDelta(t, 0.3, got["temperature"], 1e-9)
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestOAIRepoCompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   domain.ProviderErrorKind
		wantStatus int
	}{
		{
			name:       "invalid key",
			status:     http.StatusUnauthorized,
			body:       `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			wantKind:   domain.ProviderAuth,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "server error is not retried",
			status:     http.StatusInternalServerError,
			body:       `{"error": {"message": "oops", "type": "server_error"}}`,
			wantKind:   domain.ProviderAPI,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:     "no choices",
			status:   http.StatusOK,
			body:     `{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-3.5-turbo", "choices": []}`,
			wantKind: domain.ProviderMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			resp, err := repo.Complete(context.Background(), domain.Prompt{User: "hi"}, "gpt-3.5-turbo")
			require.Error(t, err)
			assert.Nil(t, resp)

			var perr *domain.ProviderError
			require.True(t, errors.As(err, &perr), "want ProviderError, got %T", err)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, tt.wantStatus, perr.StatusCode)
			assert.Equal(t, int32(1), atomic.LoadInt32(calls))
		})
	}
}

func TestOAIRepoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	repo := NewOAIRepo(OAIConfig{ApiKey: "sk-test", BaseUrl: url})

	_, err := repo.Complete(context.Background(), domain.Prompt{User: "hi"}, "gpt-3.5-turbo")

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.ProviderTransport, perr.Kind)
}

func TestOAIRepoRejectsEmptyModel(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := repo.Complete(context.Background(), domain.Prompt{User: "hi"}, "  ")

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.ProviderMalformed, perr.Kind)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestOAIRepoRateLimitHonoursContext(t *testing.T) {
	repo, calls := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	})
	repo.limiter = NewOAIRepo(OAIConfig{ApiKey: "k", RequestsPerMinute: 1}).limiter

	_, err := repo.Complete(context.Background(), domain.Prompt{User: "first"}, "gpt-3.5-turbo")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = repo.Complete(ctx, domain.Prompt{User: "second"}, "gpt-3.5-turbo")

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.ProviderTransport, perr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestOAIRepoCompleteCancelledInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	})

	_, err := repo.Complete(ctx, domain.Prompt{User: "hi"}, "gpt-3.5-turbo")

	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, domain.ProviderTransport, perr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}
