package components

//go:generate go run github.com/a-h/templ/cmd/templ@v0.2.476 generate

import (
	"fmt"

	"github.com/felixbrock/promptopt/internal/domain"
)

func runSummary(session *domain.Session) string {
	summary := fmt.Sprintf("%d test cases", len(session.TestCases))
	if n := len(session.Refinements); n > 0 {
		summary += fmt.Sprintf(", %d refinements", n)
	}
	return summary
}

func costLine(usage domain.Usage) string {
	return fmt.Sprintf("%d tokens, estimated cost $%.4f", usage.TotalTokens, usage.Cost)
}

func tokenLine(usage domain.Usage) string {
	return fmt.Sprintf("%d (prompt %d, completion %d)", usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
}

func answerFor(session *domain.Session, i int) string {
	if i < len(session.Answers) && session.Answers[i] != "" {
		return session.Answers[i]
	}
	return "(not answered)"
}
