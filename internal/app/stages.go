package app

import (
	"context"
	"strings"

	"github.com/felixbrock/promptopt/internal/domain"
)

type Clarification struct {
	Questions []string
	Answers   []string
	Prompt    string
}

// SynthesisInput is what the synthesizer sees. Priors and Feedback are only
// set when an earlier result is being refined.
type SynthesisInput struct {
	ClarifiedPrompt string
	Evaluations     []domain.Evaluation
	Priors          []string
	Feedback        string
}

type Synthesis struct {
	Prompt  string
	Summary string
}

// Classify never fails on unrecognised output: it logs the parse error and
// returns General.
func (o *Optimizer) Classify(ctx context.Context, rawPrompt string, model string) (domain.TaskType, error) {
	resp, err := o.client.Complete(ctx, classifierPrompt(rawPrompt), model)
	if err != nil {
		return "", err
	}

	taskType, ok := parseTaskType(resp.Text)
	if !ok {
		perr := &domain.ParseError{Stage: stageClassify, Reason: "unknown task type label", Output: resp.Text}
		o.logger.Warn("task type fallback", "fallback", taskType, "err", perr)
	}

	return taskType, nil
}

func (o *Optimizer) Clarify(ctx context.Context, rawPrompt string, taskType domain.TaskType, model string) (*Clarification, error) {
	clarification := &Clarification{Prompt: rawPrompt}

	maxQuestions := o.config.maxQuestions()
	if maxQuestions == 0 {
		o.logger.Debug("clarification disabled, keeping the raw prompt")
		return clarification, nil
	}

	resp, err := o.client.Complete(ctx, clarifierPrompt(rawPrompt, taskType, maxQuestions, o.config.Temperature), model)
	if err != nil {
		return nil, err
	}

	clarification.Questions = parseQuestions(resp.Text, maxQuestions)
	if len(clarification.Questions) == 0 {
		return clarification, nil
	}

	if o.askUser == nil {
		o.logger.Info("no one to ask, keeping the raw prompt", "questions", len(clarification.Questions))
		return clarification, nil
	}

	clarification.Answers = make([]string, 0, len(clarification.Questions))
	for _, question := range clarification.Questions {
		answer, err := o.askUser(ctx, question)
		if err != nil {
			return nil, err
		}
		clarification.Answers = append(clarification.Answers, strings.TrimSpace(answer))
	}

	clarification.Prompt = foldAnswers(rawPrompt, clarification.Questions, clarification.Answers)

	return clarification, nil
}

func (o *Optimizer) GenerateTestCases(ctx context.Context, clarifiedPrompt string, model string) ([]string, error) {
	count := min(max(o.config.MaxTestCases, 1), MaxTestCasesBound)

	resp, err := o.client.Complete(ctx, testCasePrompt(clarifiedPrompt, count, o.config.Temperature), model)
	if err != nil {
		return nil, err
	}

	return parseTestCases(resp.Text, count)
}

func (o *Optimizer) Simulate(ctx context.Context, clarifiedPrompt string, testCase string, model string) (string, error) {
	resp, err := o.client.Complete(ctx, simulationPrompt(clarifiedPrompt, testCase, o.config.Temperature), model)
	if err != nil {
		return "", err
	}

	return requireText(stageSimulate, resp.Text)
}

func (o *Optimizer) Critique(ctx context.Context, clarifiedPrompt string, testCase string, response string, model string) (string, error) {
	resp, err := o.client.Complete(ctx, critiquePrompt(clarifiedPrompt, testCase, response), model)
	if err != nil {
		return "", err
	}

	return requireText(stageCritique, resp.Text)
}

func (o *Optimizer) Synthesize(ctx context.Context, in SynthesisInput, model string) (*Synthesis, error) {
	resp, err := o.client.Complete(ctx, synthesisPrompt(in), model)
	if err != nil {
		return nil, err
	}

	return parseSynthesis(resp.Text)
}
