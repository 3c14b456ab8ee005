package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()

	t.Setenv("PROMPT_OPTIMIZER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("PROMPT_OPTIMIZER_LOG_LEVEL", "")
}

func completion(t *testing.T, content string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-3.5-turbo",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	require.NoError(t, err)

	return body
}

// fakeProvider answers chat completions according to the instructions in
// the system message.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		system := req.Messages[0].Content
		var reply string
		switch {
		case strings.HasPrefix(system, "You are a prompt analyst"):
			reply = "<task_type>summarization</task_type>"
		case strings.HasPrefix(system, "You are a prompt engineering assistant"):
			reply = "<question>Who will read the summary?</question>"
		case strings.HasPrefix(system, "You are a prompt tester"):
			reply = "<test_case>A news article</test_case><test_case>A research paper</test_case>"
		case strings.HasPrefix(system, "You are a strict reviewer"):
			reply = "- Conciseness: too long"
		case strings.HasPrefix(system, "You are a master prompt engineer") &&
			strings.Contains(req.Messages[1].Content, "User feedback on the latest rewrite"):
			reply = "<optimized_prompt>Summarize the text in one sentence for executives.</optimized_prompt>" +
				"<improvement_summary>Cut it to one sentence.</improvement_summary>"
		case strings.HasPrefix(system, "You are a master prompt engineer"):
			reply = "<optimized_prompt>Summarize the text in three bullets for executives.</optimized_prompt>"
		default:
			reply = "A summary of " + req.Messages[len(req.Messages)-1].Content
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(completion(t, reply))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestRunMissingKey(t *testing.T) {
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, streams{
		in:  strings.NewReader("Summarize this\n\n"),
		out: &stdout,
		err: &stderr,
	})

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Error: Configuration error:")
	assert.Contains(t, stderr.String(), "OPENAI_API_KEY")
	assert.Empty(t, stdout.String())
}

func TestRunEmptyPrompt(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", fakeProvider(t).URL)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, streams{
		in:  strings.NewReader("\n"),
		out: &stdout,
		err: &stderr,
	})

	assert.Equal(t, 5, code)
	assert.Contains(t, stderr.String(), "prompt is empty")
}

func TestRunRejectsArgs(t *testing.T) {
	isolateEnv(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"unexpected"}, streams{
		in:  strings.NewReader(""),
		out: &stdout,
		err: &stderr,
	})

	assert.Equal(t, 1, code)
}

func TestRunEndToEnd(t *testing.T) {
	isolateEnv(t)

	srv := fakeProvider(t)
	report := filepath.Join(t.TempDir(), "report.html")
	config := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte(
		"openai_api_key: sk-test\n"+
			"base_url: "+srv.URL+"\n"+
			"report_path: "+report+"\n"), 0o600))
	t.Setenv("PROMPT_OPTIMIZER_CONFIG", config)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, streams{
		in:  strings.NewReader("Summarize this text\n\nExecutives\n"),
		out: &stdout,
		err: &stderr,
	})
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "? Who will read the summary?")
	assert.Contains(t, out, "Task Type: summarization")
	assert.Contains(t, out, "A: Executives")
	assert.Contains(t, out, "CRISPO Output:\nSummarize the text in three bullets for executives.")
	assert.NotContains(t, out, "Enter your prompt")

	html, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Test case 2")
	assert.Contains(t, string(html), "A research paper")
}

func TestRunRefines(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", fakeProvider(t).URL)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, streams{
		in:  strings.NewReader("Summarize this text\n\nExecutives\nMake it shorter\n\n"),
		out: &stdout,
		err: &stderr,
	})
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	first := strings.Index(out, "CRISPO Output:\nSummarize the text in three bullets for executives.")
	second := strings.Index(out, "CRISPO Output:\nSummarize the text in one sentence for executives.")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Contains(t, out, "Improvements:\nCut it to one sentence.")
}

func TestRunInterruptedWhileReading(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, nil, streams{in: pr, out: &stdout, err: &stderr})

	assert.Equal(t, 130, code)
	assert.Contains(t, stderr.String(), "Error: Interrupted:")
}

func TestConsoleReadLine(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(strings.NewReader("  first  \nlast"), &out, true)
	ctx := context.Background()

	line, err := c.readLine(ctx, "Label: ")
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = c.readLine(ctx, "Label: ")
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	line, err = c.readLine(ctx, "Label: ")
	require.NoError(t, err)
	assert.Empty(t, line)

	assert.Equal(t, "Label: Label: Label: ", out.String())
}

func TestConsoleReadLineCancelledWhileBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	c := newConsole(pr, &bytes.Buffer{}, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.readLine(ctx, "")
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("readLine kept blocking after cancel")
	}
}

func TestConsoleAskCancelled(t *testing.T) {
	c := newConsole(strings.NewReader("answer\n"), &bytes.Buffer{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ask(ctx, "Who is the audience?")
	assert.ErrorIs(t, err, context.Canceled)
}
