package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixbrock/promptopt/internal/domain"
)

const (
	DefaultModel        = "gpt-3.5-turbo"
	DefaultTemperature  = 0.7
	DefaultMaxQuestions = 3
	DefaultMaxTestCases = 3
	MaxTestCasesBound   = 5

	configFileName = "prompt-optimizer.yaml"
)

type Config struct {
	OAIApiKey         string  `yaml:"openai_api_key"`
	BaseUrl           string  `yaml:"base_url"`
	DefaultModel      string  `yaml:"default_model"`
	Temperature       float64 `yaml:"temperature"`
	// nil means DefaultMaxQuestions. 0 turns clarification off.
	MaxQuestions      *int    `yaml:"max_questions"`
	MaxTestCases      int     `yaml:"max_test_cases"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	ReportPath        string  `yaml:"report_path"`
	LogLevel          string  `yaml:"log_level"`
}

// LoadConfig reads the first config file found and then applies the
// environment on top. A missing file is not an error. A missing API key is
// reported by Validate, not here.
func LoadConfig() (Config, error) {
	config := Config{}

	for _, path := range configPaths() {
		content, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, &domain.ConfigurationError{Field: "config file", Msg: err.Error()}
		}

		if err := yaml.Unmarshal(content, &config); err != nil {
			return Config{}, &domain.ConfigurationError{Field: "config file", Msg: fmt.Sprintf("%s: %s", path, err.Error())}
		}

		slog.Debug("config file loaded", "path", path)
		break
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.OAIApiKey = key
	}
	if baseUrl := os.Getenv("OPENAI_BASE_URL"); baseUrl != "" {
		config.BaseUrl = baseUrl
	}
	if level := os.Getenv("PROMPT_OPTIMIZER_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	return config.withDefaults(), nil
}

func configPaths() []string {
	if path := os.Getenv("PROMPT_OPTIMIZER_CONFIG"); path != "" {
		return []string{path}
	}

	paths := []string{configFileName}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "prompt-optimizer", "config.yaml"))
	}

	return paths
}

func (c Config) withDefaults() Config {
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxQuestions == nil {
		c.MaxQuestions = Int(DefaultMaxQuestions)
	}
	if c.MaxTestCases == 0 {
		c.MaxTestCases = DefaultMaxTestCases
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OAIApiKey) == "" {
		return &domain.ConfigurationError{Field: "OPENAI_API_KEY", Msg: "not set in the environment or config file"}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &domain.ConfigurationError{Field: "temperature", Msg: fmt.Sprintf("%v is outside [0, 2]", c.Temperature)}
	}
	if c.maxQuestions() < 0 {
		return &domain.ConfigurationError{Field: "max_questions", Msg: "must not be negative"}
	}
	if c.MaxTestCases < 1 || c.MaxTestCases > MaxTestCasesBound {
		return &domain.ConfigurationError{Field: "max_test_cases", Msg: fmt.Sprintf("%d is outside [1, %d]", c.MaxTestCases, MaxTestCasesBound)}
	}
	if c.RequestsPerMinute < 0 {
		return &domain.ConfigurationError{Field: "requests_per_minute", Msg: "must not be negative"}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return &domain.ConfigurationError{Field: "log_level", Msg: err.Error()}
	}
	return nil
}

func (c Config) maxQuestions() int {
	if c.MaxQuestions == nil {
		return DefaultMaxQuestions
	}
	return *c.MaxQuestions
}

// Int returns a pointer to n, for the optional Config fields.
func Int(n int) *int {
	return &n
}

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
