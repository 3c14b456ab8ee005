package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"golang.org/x/time/rate"

	"github.com/felixbrock/promptopt/internal/domain"
)

type OAIConfig struct {
	ApiKey            string
	BaseUrl           string
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// OAIRepo sends chat completion requests to the OpenAI API. A repo is built
// for one pipeline run and is not shared between runs.
type OAIRepo struct {
	client  openai.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOAIRepo(config OAIConfig) *OAIRepo {
	opts := []option.RequestOption{
		option.WithAPIKey(config.ApiKey),
		// A failed call aborts the stage. The SDK must not retry on its own.
		option.WithMaxRetries(0),
	}

	if config.BaseUrl != "" {
		baseUrl := config.BaseUrl
		if !strings.HasSuffix(baseUrl, "/") {
			baseUrl += "/"
		}
		opts = append(opts, option.WithBaseURL(baseUrl))
	}

	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OAIRepo{
		client:  openai.NewClient(opts...),
		limiter: limiter,
		logger:  logger,
	}
}

func (r *OAIRepo) Complete(ctx context.Context, prompt domain.Prompt, model string) (*domain.ProviderResponse, error) {
	if strings.TrimSpace(model) == "" {
		return nil, &domain.ProviderError{Kind: domain.ProviderMalformed, Err: errors.New("no model given")}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &domain.ProviderError{Kind: domain.ProviderTransport, Model: model, Err: err}
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}
	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if prompt.Temperature > 0 {
		params.Temperature = openai.Float(prompt.Temperature)
	}

	completion, err := r.client.Chat.Completions.New(ctx, params)

	if err != nil {
		return nil, classify(model, err)
	}

	if len(completion.Choices) == 0 {
		return nil, &domain.ProviderError{Kind: domain.ProviderMalformed, Model: model, Err: errors.New("response has no choices")}
	}

	usage := domain.Usage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}

	cost, known := EstimateCost(model, usage.PromptTokens, usage.CompletionTokens)
	usage.Cost = cost
	if !known {
		r.logger.Debug("no pricing for model, cost not estimated", "model", model)
	}

	r.logger.Debug("completion finished",
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"cost", fmt.Sprintf("$%.4f", usage.Cost))

	return &domain.ProviderResponse{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: usage,
	}, nil
}

func classify(model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := domain.ProviderAPI
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			kind = domain.ProviderAuth
		}
		return &domain.ProviderError{Kind: kind, Model: model, StatusCode: apiErr.StatusCode, Err: err}
	}

	return &domain.ProviderError{Kind: domain.ProviderTransport, Model: model, Err: err}
}
