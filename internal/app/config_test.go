package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixbrock/promptopt/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
openai_api_key: sk-from-file
default_model: gpt-4o
max_test_cases: 5
requests_per_minute: 30
report_path: run.html
log_level: debug
`)
	t.Setenv("PROMPT_OPTIMIZER_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("PROMPT_OPTIMIZER_LOG_LEVEL", "")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", config.OAIApiKey)
	assert.Equal(t, "gpt-4o", config.DefaultModel)
	assert.Equal(t, 5, config.MaxTestCases)
	require.NotNil(t, config.MaxQuestions)
	assert.Equal(t, DefaultMaxQuestions, *config.MaxQuestions)
	assert.Equal(t, DefaultTemperature, config.Temperature)
	assert.Equal(t, 30, config.RequestsPerMinute)
	assert.Equal(t, "run.html", config.ReportPath)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "openai_api_key: sk-from-file\nlog_level: info\n")
	t.Setenv("PROMPT_OPTIMIZER_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8080/v1")
	t.Setenv("PROMPT_OPTIMIZER_LOG_LEVEL", "error")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", config.OAIApiKey)
	assert.Equal(t, "http://localhost:8080/v1", config.BaseUrl)
	assert.Equal(t, "error", config.LogLevel)
}

func TestLoadConfigKeepsZeroQuestions(t *testing.T) {
	t.Setenv("PROMPT_OPTIMIZER_CONFIG", writeConfig(t, "openai_api_key: sk-test\nmax_questions: 0\n"))
	t.Setenv("OPENAI_API_KEY", "")

	config, err := LoadConfig()
	require.NoError(t, err)

	require.NotNil(t, config.MaxQuestions)
	assert.Equal(t, 0, *config.MaxQuestions)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigMissingKey(t *testing.T) {
	t.Setenv("PROMPT_OPTIMIZER_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("OPENAI_API_KEY", "")

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, config.DefaultModel)

	var configErr *domain.ConfigurationError
	require.True(t, errors.As(config.Validate(), &configErr))
	assert.Equal(t, "OPENAI_API_KEY", configErr.Field)
}

func TestLoadConfigBadYAML(t *testing.T) {
	t.Setenv("PROMPT_OPTIMIZER_CONFIG", writeConfig(t, "max_test_cases: [1, 2"))

	_, err := LoadConfig()

	var configErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &configErr))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{name: "temperature", modify: func(c *Config) { c.Temperature = 3 }, field: "temperature"},
		{name: "too many test cases", modify: func(c *Config) { c.MaxTestCases = 9 }, field: "max_test_cases"},
		{name: "negative questions", modify: func(c *Config) { c.MaxQuestions = Int(-1) }, field: "max_questions"},
		{name: "negative rate", modify: func(c *Config) { c.RequestsPerMinute = -5 }, field: "requests_per_minute"},
		{name: "log level", modify: func(c *Config) { c.LogLevel = "loud" }, field: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{OAIApiKey: "k"}.withDefaults()
			tt.modify(&config)

			var configErr *domain.ConfigurationError
			require.True(t, errors.As(config.Validate(), &configErr))
			assert.Equal(t, tt.field, configErr.Field)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"":      slog.LevelWarn,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestErrContext(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: &domain.ConfigurationError{Field: "OPENAI_API_KEY", Msg: "not set"}, code: 2},
		{err: fmt.Errorf("simulate 1/3: %w", &domain.ProviderError{Kind: domain.ProviderTransport}), code: 3},
		{err: &domain.ProviderError{Kind: domain.ProviderAuth, StatusCode: 401}, code: 3},
		{err: fmt.Errorf("generate_test_cases: %w", &domain.ParseError{Stage: "generate_test_cases"}), code: 4},
		{err: ErrEmptyPrompt, code: 5},
		{err: ErrEmptyFeedback, code: 5},
		{err: fmt.Errorf("simulate 2/3: %w", &domain.ProviderError{Kind: domain.ProviderTransport, Err: fmt.Errorf("post: %w", context.Canceled)}), code: 130},
		{err: context.Canceled, code: 130},
		{err: errors.New("other"), code: 1},
	}

	for _, tt := range tests {
		ctx := ErrContext(tt.err)
		assert.Equal(t, tt.code, ctx.Code, tt.err.Error())
		assert.NotEmpty(t, ctx.Title)
		assert.Equal(t, tt.err.Error(), ctx.Msg)
	}
}
