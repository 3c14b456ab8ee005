package components

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixbrock/promptopt/internal/domain"
)

// Results writes the outcome of a session in the order the CLI has always
// printed it: raw prompt, task type, clarified prompt, CRISPO output.
func Results(w io.Writer, session *domain.Session) error {
	r := lipgloss.NewRenderer(w)

	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	label := r.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dim := r.NewStyle().Faint(true)

	result := session.Result()

	var b strings.Builder
	b.WriteString("\n" + title.Render("--- Prompt Optimizer Results ---") + "\n")
	fmt.Fprintf(&b, "%s %s\n", label.Render("Raw Prompt:"), session.RawPrompt)
	fmt.Fprintf(&b, "%s %s\n", label.Render("Task Type:"), result.TaskType)
	fmt.Fprintf(&b, "\n%s\n%s\n", label.Render("Clarified Prompt:"), result.ClarifiedPrompt)
	fmt.Fprintf(&b, "\n%s\n%s\n", label.Render("CRISPO Output:"), result.CrispoPrompt)
	if session.ImprovementSummary != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", label.Render("Improvements:"), session.ImprovementSummary)
	}
	fmt.Fprintf(&b, "\n%s\n", dim.Render(fmt.Sprintf("%s, %s", runSummary(session), costLine(session.Usage))))

	_, err := io.WriteString(w, b.String())
	return err
}

func Question(w io.Writer, question string) error {
	r := lipgloss.NewRenderer(w)
	style := r.NewStyle().Foreground(lipgloss.Color("3"))

	_, err := fmt.Fprintf(w, "\n%s\n", style.Render("? "+question))
	return err
}
