package app

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/felixbrock/promptopt/internal/domain"
)

func compileTag(tag string) *regexp.Regexp {
	q := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?is)<` + q + `(?:\s[^>]*)?>(.*?)</` + q + `\s*>`)
}

var tagPatterns = map[string]*regexp.Regexp{
	"task_type":           compileTag("task_type"),
	"question":            compileTag("question"),
	"test_case":           compileTag("test_case"),
	"optimized_prompt":    compileTag("optimized_prompt"),
	"improvement_summary": compileTag("improvement_summary"),
}

var openOptimizedPrompt = regexp.MustCompile(`(?i)<optimized_prompt(?:\s[^>]*)?>`)

// extractTags returns the trimmed, non-blank bodies of every <tag> block in
// model order.
func extractTags(text string, tag string) []string {
	re, ok := tagPatterns[tag]
	if !ok {
		re = compileTag(tag)
	}

	matches := re.FindAllStringSubmatch(text, -1)

	bodies := make([]string, 0, len(matches))
	for _, m := range matches {
		body := strings.TrimSpace(m[1])
		if body != "" {
			bodies = append(bodies, body)
		}
	}

	return bodies
}

func extractTag(text string, tag string) (string, bool) {
	bodies := extractTags(text, tag)
	if len(bodies) == 0 {
		return "", false
	}
	return bodies[0], true
}

// parseTaskType maps model output to a known label. The second return value
// is false when the output did not name one and General was chosen.
func parseTaskType(output string) (domain.TaskType, bool) {
	candidate, ok := extractTag(output, "task_type")
	if !ok {
		candidate = output
	}

	normalized := normalizeLabel(candidate)
	if label := domain.TaskType(normalized); label.Valid() {
		return label, true
	}

	// "The task is summarization." names exactly one label.
	var found []domain.TaskType
	for _, t := range domain.TaskTypes {
		if strings.Contains("_"+normalized+"_", "_"+string(t)+"_") {
			found = append(found, t)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}

	return domain.General, false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if !strings.HasSuffix(b.String(), "_") {
				b.WriteRune('_')
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}

	return strings.Trim(b.String(), "_")
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// parseQuestions reads clarifying questions from tagged blocks, falling back
// to lines that end in a question mark. NONE or anything else yields no
// questions.
func parseQuestions(output string, limit int) []string {
	questions := extractTags(output, "question")

	if len(questions) == 0 && !strings.EqualFold(strings.TrimSpace(output), "none") {
		for _, line := range strings.Split(output, "\n") {
			line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
			if line != "" && strings.HasSuffix(line, "?") {
				questions = append(questions, line)
			}
		}
	}

	if len(questions) > limit {
		questions = questions[:limit]
	}

	return questions
}

func parseTestCases(output string, limit int) ([]string, error) {
	cases := extractTags(output, "test_case")

	if len(cases) == 0 {
		return nil, &domain.ParseError{Stage: stageTestCases, Reason: "no <test_case> entries in model output", Output: output}
	}

	if len(cases) > limit {
		cases = cases[:limit]
	}

	return cases, nil
}

// parseSynthesis reads the rewritten prompt and the optional improvement
// summary. Output without tags is taken as the prompt itself. An opening
// <optimized_prompt> tag without its closing tag means the reply was cut
// off, and that is an error.
func parseSynthesis(output string) (*Synthesis, error) {
	synthesis := &Synthesis{}
	synthesis.Summary, _ = extractTag(output, "improvement_summary")

	if m := tagPatterns["optimized_prompt"].FindStringSubmatch(output); m != nil {
		synthesis.Prompt = strings.TrimSpace(m[1])
	} else if openOptimizedPrompt.MatchString(output) {
		return nil, &domain.ParseError{Stage: stageSynthesize, Reason: "unclosed <optimized_prompt> tag, output may be truncated", Output: output}
	} else {
		synthesis.Prompt = strings.TrimSpace(tagPatterns["improvement_summary"].ReplaceAllString(output, ""))
	}

	if synthesis.Prompt == "" {
		return nil, &domain.ParseError{Stage: stageSynthesize, Reason: "empty optimized prompt", Output: output}
	}

	return synthesis, nil
}

func requireText(stage string, output string) (string, error) {
	text := strings.TrimSpace(output)
	if text == "" {
		return "", &domain.ParseError{Stage: stage, Reason: "empty model output", Output: output}
	}
	return text, nil
}
