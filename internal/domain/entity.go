package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type TaskType string

const (
	Summarization     TaskType = "summarization"
	QuestionAnswering TaskType = "question_answering"
	CodeGeneration    TaskType = "code_generation"
	CreativeWriting   TaskType = "creative_writing"
	DataExtraction    TaskType = "data_extraction"
	Translation       TaskType = "translation"
	General           TaskType = "general"
)

// TaskTypes lists every label the classifier may return, General last.
var TaskTypes = []TaskType{
	Summarization,
	QuestionAnswering,
	CodeGeneration,
	CreativeWriting,
	DataExtraction,
	Translation,
	General,
}

func (t TaskType) Valid() bool {
	for _, known := range TaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Prompt struct {
	System      string
	User        string
	Temperature float64
}

type Usage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Cost += other.Cost
}

type ProviderResponse struct {
	Text  string
	Model string
	Usage Usage
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

type Run struct {
	Id        string `json:"id"`
	Type      string `json:"type"`
	State     string `json:"state"`
	SessionId string `json:"session_id"`
}

type Evaluation struct {
	TestCase string `json:"test_case"`
	Response string `json:"response"`
	Critique string `json:"critique"`
}

// Refinement is one round of user feedback on a synthesized prompt.
// Previous is the prompt the feedback was given on.
type Refinement struct {
	Feedback string `json:"feedback"`
	Previous string `json:"previous"`
}

type Result struct {
	TaskType        TaskType `json:"task_type"`
	ClarifiedPrompt string   `json:"clarified_prompt"`
	CrispoPrompt    string   `json:"crispo_prompt"`
}

func (r Result) Map() map[string]string {
	return map[string]string{
		"task_type":        string(r.TaskType),
		"clarified_prompt": r.ClarifiedPrompt,
		"crispo_prompt":    r.CrispoPrompt,
	}
}

// Session is the state of a single optimization run. It is owned by one
// pipeline invocation and never shared.
type Session struct {
	Id                 string
	RawPrompt          string
	Model              string
	TaskType           TaskType
	Questions          []string
	Answers            []string
	ClarifiedPrompt    string
	TestCases          []string
	Responses          []string
	Critiques          []string
	CrispoPrompt       string
	// ImprovementSummary explains what the latest synthesis changed. It may
	// be empty.
	ImprovementSummary string
	Refinements        []Refinement
	Stage              Stage
	Err                error
	Runs               []Run
	Usage              Usage
}

func NewSession(rawPrompt string, model string) *Session {
	return &Session{
		Id:        uuid.New().String(),
		RawPrompt: rawPrompt,
		Model:     model,
		Stage:     StageStart,
	}
}

// Record stores the response and critique for test case i. Slots must be
// filled in order so the three sequences stay aligned.
func (s *Session) Record(i int, response string, critique string) error {
	if i < 0 || i >= len(s.TestCases) {
		return fmt.Errorf("test case index %d out of range [0,%d)", i, len(s.TestCases))
	}
	if i != len(s.Responses) || i != len(s.Critiques) {
		return fmt.Errorf("test case %d recorded out of order: %d responses, %d critiques", i, len(s.Responses), len(s.Critiques))
	}

	s.Responses = append(s.Responses, response)
	s.Critiques = append(s.Critiques, critique)

	return nil
}

func (s *Session) Evaluations() []Evaluation {
	n := min(len(s.TestCases), len(s.Responses), len(s.Critiques))

	evals := make([]Evaluation, n)
	for i := 0; i < n; i++ {
		evals[i] = Evaluation{
			TestCase: s.TestCases[i],
			Response: s.Responses[i],
			Critique: s.Critiques[i],
		}
	}

	return evals
}

// Priors lists the prompts that earlier syntheses produced, oldest first.
func (s *Session) Priors() []string {
	priors := make([]string, len(s.Refinements))
	for i, r := range s.Refinements {
		priors[i] = r.Previous
	}
	return priors
}

func (s *Session) Result() *Result {
	return &Result{
		TaskType:        s.TaskType,
		ClarifiedPrompt: s.ClarifiedPrompt,
		CrispoPrompt:    s.CrispoPrompt,
	}
}
