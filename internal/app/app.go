package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/felixbrock/promptopt/internal/domain"
	"github.com/felixbrock/promptopt/internal/persistence"
)

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrEmptyFeedback = errors.New("feedback is empty")
)

const (
	stageClassify   = "classify"
	stageClarify    = "clarify"
	stageTestCases  = "generate_test_cases"
	stageSimulate   = "simulate"
	stageCritique   = "critique"
	stageSynthesize = "synthesize"
	stageRefine     = "refine"
)

type ModelClient interface {
	Complete(ctx context.Context, prompt domain.Prompt, model string) (*domain.ProviderResponse, error)
}

// AskUser blocks until the user has answered the question.
type AskUser func(ctx context.Context, question string) (string, error)

type RunRepo interface {
	Insert(run domain.Run) error
	Update(id string, state string) error
	Read(filter persistence.RunReadFilter) ([]domain.Run, error)
}

type options struct {
	client     ModelClient
	askUser    AskUser
	logger     *slog.Logger
	runRepo    RunRepo
	httpClient *http.Client
}

type Option func(*options)

// WithModelClient replaces the OpenAI client built from the config.
func WithModelClient(client ModelClient) Option {
	return func(o *options) { o.client = client }
}

func WithAskUser(askUser AskUser) Option {
	return func(o *options) { o.askUser = askUser }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithRunRepo(repo RunRepo) Option {
	return func(o *options) { o.runRepo = repo }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// Optimizer runs the pipeline for one session at a time. It is not safe for
// concurrent use.
type Optimizer struct {
	client  *meteredClient
	askUser AskUser
	config  Config
	logger  *slog.Logger
	runRepo RunRepo
}

func New(config Config, client ModelClient, opts ...Option) *Optimizer {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.runRepo == nil {
		o.runRepo = persistence.NewRunRepo()
	}

	return &Optimizer{
		client:  &meteredClient{inner: client},
		askUser: o.askUser,
		config:  config.withDefaults(),
		logger:  o.logger,
		runRepo: o.runRepo,
	}
}

// NewFromConfig validates the config and builds an Optimizer backed by the
// OpenAI client, unless WithModelClient supplies another one.
func NewFromConfig(config Config, opts ...Option) (*Optimizer, error) {
	config = config.withDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		client = persistence.NewOAIRepo(persistence.OAIConfig{
			ApiKey:            config.OAIApiKey,
			BaseUrl:           config.BaseUrl,
			RequestsPerMinute: config.RequestsPerMinute,
			HTTPClient:        o.httpClient,
			Logger:            o.logger,
		})
	}

	return New(config, client, opts...), nil
}

// Optimize validates the config, builds the model client and runs the
// pipeline once. The returned session is FAILED when err is not nil.
func Optimize(ctx context.Context, config Config, prompt string, model string, opts ...Option) (*domain.Session, error) {
	optimizer, err := NewFromConfig(config, opts...)
	if err != nil {
		return nil, err
	}

	return optimizer.Run(ctx, prompt, model)
}

// RunPromptOptimizer is the programmatic entry point. It returns no result
// when any stage fails.
func RunPromptOptimizer(ctx context.Context, config Config, prompt string, model string, opts ...Option) (*domain.Result, error) {
	session, err := Optimize(ctx, config, prompt, model, opts...)
	if err != nil {
		return nil, err
	}

	return session.Result(), nil
}

// Run optimizes rawPrompt with model, or with the configured default model
// when model is blank.
func (o *Optimizer) Run(ctx context.Context, rawPrompt string, model string) (session *domain.Session, err error) {
	if strings.TrimSpace(model) == "" {
		model = o.config.DefaultModel
	}

	session = domain.NewSession(rawPrompt, model)
	logger := o.logger.With("session", session.Id, "model", model)

	o.client.usage = domain.Usage{}

	defer func() {
		session.Usage = o.client.usage

		runs, readErr := o.runRepo.Read(persistence.RunReadFilter{SessionId: session.Id})
		if readErr != nil {
			logger.Error(fmt.Sprintf("Error occured: %s", readErr.Error()))
		}
		session.Runs = runs

		if err != nil {
			failedAt := session.Stage
			session.Fail(err)
			logger.Error("optimization failed", "after", failedAt.String(), "err", err)
			return
		}

		logger.Info("optimization finished",
			"task_type", session.TaskType,
			"test_cases", len(session.TestCases),
			"total_tokens", session.Usage.TotalTokens,
			"cost", fmt.Sprintf("$%.4f", session.Usage.Cost))
	}()

	if strings.TrimSpace(rawPrompt) == "" {
		return session, ErrEmptyPrompt
	}

	err = o.track(session, stageClassify, func() error {
		taskType, err := o.Classify(ctx, rawPrompt, model)
		if err != nil {
			return err
		}
		session.TaskType = taskType
		return session.Advance(domain.StageClassified)
	})
	if err != nil {
		return session, err
	}

	err = o.track(session, stageClarify, func() error {
		clarification, err := o.Clarify(ctx, rawPrompt, session.TaskType, model)
		if err != nil {
			return err
		}
		session.Questions = clarification.Questions
		session.Answers = clarification.Answers
		session.ClarifiedPrompt = clarification.Prompt
		return session.Advance(domain.StageClarified)
	})
	if err != nil {
		return session, err
	}

	err = o.track(session, stageTestCases, func() error {
		testCases, err := o.GenerateTestCases(ctx, session.ClarifiedPrompt, model)
		if err != nil {
			return err
		}
		session.TestCases = testCases
		return session.Advance(domain.StageTested)
	})
	if err != nil {
		return session, err
	}

	for i, testCase := range session.TestCases {
		var response, critique string

		err = o.track(session, fmt.Sprintf("%s %d/%d", stageSimulate, i+1, len(session.TestCases)), func() error {
			var simErr error
			response, simErr = o.Simulate(ctx, session.ClarifiedPrompt, testCase, model)
			return simErr
		})
		if err != nil {
			return session, err
		}

		err = o.track(session, fmt.Sprintf("%s %d/%d", stageCritique, i+1, len(session.TestCases)), func() error {
			var critErr error
			critique, critErr = o.Critique(ctx, session.ClarifiedPrompt, testCase, response, model)
			return critErr
		})
		if err != nil {
			return session, err
		}

		if err = session.Record(i, response, critique); err != nil {
			return session, err
		}
	}

	if err = session.Advance(domain.StageEvaluated); err != nil {
		return session, err
	}

	err = o.track(session, stageSynthesize, func() error {
		synthesis, err := o.Synthesize(ctx, SynthesisInput{
			ClarifiedPrompt: session.ClarifiedPrompt,
			Evaluations:     session.Evaluations(),
		}, model)
		if err != nil {
			return err
		}
		session.CrispoPrompt = synthesis.Prompt
		session.ImprovementSummary = synthesis.Summary
		return session.Advance(domain.StageSynthesized)
	})

	return session, err
}

// Refine synthesizes the prompt of a finished session again with the user's
// feedback and every earlier prompt in view. The session keeps its current
// prompt when Refine fails.
func (o *Optimizer) Refine(ctx context.Context, session *domain.Session, feedback string) error {
	if session.Stage != domain.StageSynthesized {
		return fmt.Errorf("session %s is %s, only synthesized sessions can be refined", session.Id, session.Stage)
	}

	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return ErrEmptyFeedback
	}

	logger := o.logger.With("session", session.Id, "model", session.Model)

	o.client.usage = session.Usage
	defer func() {
		session.Usage = o.client.usage

		runs, err := o.runRepo.Read(persistence.RunReadFilter{SessionId: session.Id})
		if err != nil {
			logger.Error(fmt.Sprintf("Error occured: %s", err.Error()))
			return
		}
		session.Runs = runs
	}()

	refinement := domain.Refinement{Feedback: feedback, Previous: session.CrispoPrompt}

	return o.track(session, fmt.Sprintf("%s %d", stageRefine, len(session.Refinements)+1), func() error {
		synthesis, err := o.Synthesize(ctx, SynthesisInput{
			ClarifiedPrompt: session.ClarifiedPrompt,
			Evaluations:     session.Evaluations(),
			Priors:          append(session.Priors(), refinement.Previous),
			Feedback:        feedback,
		}, session.Model)
		if err != nil {
			return err
		}

		session.Refinements = append(session.Refinements, refinement)
		session.CrispoPrompt = synthesis.Prompt
		session.ImprovementSummary = synthesis.Summary

		logger.Info("prompt refined", "round", len(session.Refinements), "total_tokens", o.client.usage.TotalTokens)

		return nil
	})
}

// track records a stage run and marks it completed or failed once fn
// returns. Errors from fn come back prefixed with the stage name.
func (o *Optimizer) track(session *domain.Session, stage string, fn func() error) (err error) {
	run := domain.Run{
		Id:        uuid.New().String(),
		Type:      stage,
		State:     domain.RunRunning,
		SessionId: session.Id,
	}

	if insertErr := o.runRepo.Insert(run); insertErr != nil {
		o.logger.Error(fmt.Sprintf("Error occured: %s", insertErr.Error()))
	}

	o.logger.Debug("stage started", "session", session.Id, "stage", stage)

	defer func() {
		state := domain.RunCompleted
		if err != nil {
			state = domain.RunFailed
			err = fmt.Errorf("%s: %w", stage, err)
		}

		if updateErr := o.runRepo.Update(run.Id, state); updateErr != nil {
			o.logger.Error(fmt.Sprintf("Error occured: %s", updateErr.Error()))
		}

		o.logger.Debug("stage finished", "session", session.Id, "stage", stage, "state", state)
	}()

	return fn()
}

type meteredClient struct {
	inner ModelClient
	usage domain.Usage
}

func (c *meteredClient) Complete(ctx context.Context, prompt domain.Prompt, model string) (*domain.ProviderResponse, error) {
	resp, err := c.inner.Complete(ctx, prompt, model)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderMalformed, Model: model, Err: errors.New("nil response")}
	}

	c.usage.Add(resp.Usage)

	return resp, nil
}
