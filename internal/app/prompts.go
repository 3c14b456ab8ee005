package app

import (
	"fmt"
	"strings"

	"github.com/felixbrock/promptopt/internal/domain"
)

const classifierInstructions = `You are a prompt analyst. Classify the task the user's prompt asks an AI model to perform.

Choose exactly one of these labels:
%s

Reply with the label only, wrapped in tags:
<task_type>label</task_type>`

const clarifierInstructions = `You are a prompt engineering assistant. The prompt below is for a %s task.
Decide whether it leaves out information an AI model would need to do the task well: context, audience, goal, scope, output format or tone.

If it does, ask at most %d short clarifying questions, each wrapped in tags:
<question>...</question>

If the prompt is already clear enough, reply with the single word NONE.`

const testCaseInstructions = `You are a prompt tester. Write %d test inputs that expose weaknesses in how the prompt below would be interpreted by an AI model.
Cover a typical input, an edge case and an adversarial or ambiguous input.

Wrap each input in tags and write nothing else:
<test_case>...</test_case>`

const critiqueInstructions = `You are a strict reviewer of AI responses. Judge whether the response fulfils the intent of the prompt that produced it.
Critique it on at most five relevant aspects such as precision, completeness, conciseness, specificity, format and style.
Name each shortcoming and what in the prompt allowed it. If the response is adequate, say so and explain why.

Format:
- [Aspect]: [Comment]`

const synthesisInstructions = `You are a master prompt engineer. Rewrite the prompt so that it avoids every shortcoming the critiques found, while keeping the user's intent.
Make it self-contained, specific about the expected output and as concise as completeness allows.

If the user gave feedback on an earlier rewrite, it takes precedence over the critiques.

Return the rewritten prompt wrapped in tags, followed by a short summary of what you changed and why:
<optimized_prompt>...</optimized_prompt>
<improvement_summary>...</improvement_summary>`

const clarificationHeader = "Additional context:"

func classifierPrompt(rawPrompt string) domain.Prompt {
	labels := make([]string, len(domain.TaskTypes))
	for i, t := range domain.TaskTypes {
		labels[i] = "- " + string(t)
	}

	return domain.Prompt{
		System:      fmt.Sprintf(classifierInstructions, strings.Join(labels, "\n")),
		User:        rawPrompt,
		Temperature: 0.3,
	}
}

func clarifierPrompt(rawPrompt string, taskType domain.TaskType, maxQuestions int, temperature float64) domain.Prompt {
	return domain.Prompt{
		System:      fmt.Sprintf(clarifierInstructions, strings.ReplaceAll(string(taskType), "_", " "), maxQuestions),
		User:        rawPrompt,
		Temperature: temperature,
	}
}

func testCasePrompt(clarifiedPrompt string, count int, temperature float64) domain.Prompt {
	return domain.Prompt{
		System:      fmt.Sprintf(testCaseInstructions, count),
		User:        clarifiedPrompt,
		Temperature: temperature,
	}
}

func simulationPrompt(clarifiedPrompt string, testCase string, temperature float64) domain.Prompt {
	return domain.Prompt{
		System:      clarifiedPrompt,
		User:        testCase,
		Temperature: temperature,
	}
}

func critiquePrompt(clarifiedPrompt string, testCase string, response string) domain.Prompt {
	user := fmt.Sprintf("Prompt:\n%s\n\nTest input:\n%s\n\nResponse:\n%s", clarifiedPrompt, testCase, response)

	return domain.Prompt{
		System:      critiqueInstructions,
		User:        user,
		Temperature: 0.3,
	}
}

func synthesisPrompt(in SynthesisInput) domain.Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Prompt:\n%s\n", in.ClarifiedPrompt)

	for i, eval := range in.Evaluations {
		fmt.Fprintf(&b, "\nTest case %d:\n%s\n\nResponse:\n%s\n\nCritique:\n%s\n", i+1, eval.TestCase, eval.Response, eval.Critique)
	}

	if len(in.Priors) > 0 {
		b.WriteString("\nEarlier rewrites, to improve on rather than repeat:\n")
		for i, prior := range in.Priors {
			fmt.Fprintf(&b, "%d. %s\n", i+1, prior)
		}
	}

	if feedback := strings.TrimSpace(in.Feedback); feedback != "" {
		fmt.Fprintf(&b, "\nUser feedback on the latest rewrite:\n%s\n", feedback)
	}

	return domain.Prompt{
		System:      synthesisInstructions,
		User:        b.String(),
		Temperature: 0.3,
	}
}

// foldAnswers appends the answered questions to the raw prompt. Blank
// answers are dropped and the raw prompt is returned unchanged when none
// remain.
func foldAnswers(rawPrompt string, questions []string, answers []string) string {
	var b strings.Builder

	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		a := strings.TrimSpace(answers[i])
		if a == "" {
			continue
		}
		fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", q, a)
	}

	if b.Len() == 0 {
		return rawPrompt
	}

	return fmt.Sprintf("%s\n\n%s\n%s", rawPrompt, clarificationHeader, strings.TrimSuffix(b.String(), "\n"))
}
