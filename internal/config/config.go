package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains the chat completion endpoint settings.
type API struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// RetryAttempts is the HTTP-level attempt count per dispatch. The
	// pipeline requeues failed requests on its own, so this stays low.
	RetryAttempts int    `toml:"retry_attempts"`
	Referer       string `toml:"referer"`
	Title         string `toml:"title"`
}

// Model contains prompt and sampling settings applied to every request.
// Nil sampling values are left to the provider.
type Model struct {
	SystemPrompt string   `toml:"system_prompt"`
	Temperature  *float64 `toml:"temperature"`
	TopP         *float64 `toml:"top_p"`
}

// Data describes the input dataset.
type Data struct {
	Path   string `toml:"path"`
	Type   string `toml:"type"`
	Format string `toml:"format"`
	// Limit keeps only the first N rows. Zero keeps everything.
	Limit int `toml:"limit"`
	// Table names the sqlite table to read.
	Table string `toml:"table"`
}

// Processes contains worker pool settings.
type Processes struct {
	Parallel int `toml:"parallel"`
	// MaxAttempts abandons a request after that many failed attempts.
	// Zero retries forever.
	MaxAttempts int `toml:"max_attempts"`
}

// Output describes where results are persisted. An empty Path disables
// persistence entirely.
type Output struct {
	Path               string `toml:"path"`
	Type               string `toml:"type"`
	Format             string `toml:"format"`
	CheckpointInterval int    `toml:"checkpoint_interval"`
	Table              string `toml:"table"`
}

// Verification configures the optional accept/reject stage.
type Verification struct {
	Enabled     bool   `toml:"enabled"`
	Workers     int    `toml:"workers"`
	Method      string `toml:"method"`
	Pattern     string `toml:"pattern"`
	MinLength   int    `toml:"min_length"`
	JudgePrompt string `toml:"judge_prompt"`
	JudgeModel  string `toml:"judge_model"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File receives JSON log records in addition to the console.
	File string `toml:"file"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	ListenAddr string `toml:"listen_addr"`
}

// Config encapsulates all configuration values for chatbatch.
type Config struct {
	API          API          `toml:"api"`
	Model        Model        `toml:"model"`
	Data         Data         `toml:"data"`
	Processes    Processes    `toml:"processes"`
	Output       Output       `toml:"output"`
	Verification Verification `toml:"verification"`
	Logging      Logging      `toml:"logging"`
	Metrics      Metrics      `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the connection settings for one chat endpoint.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	RetryAttempts  int
}

// LLM returns the connection settings used for dispatch.
func (c *Config) LLM() LLMConfig {
	return LLMConfig{
		APIKey:         c.API.APIKey,
		BaseURL:        c.API.BaseURL,
		Model:          c.API.Model,
		Referer:        c.API.Referer,
		Title:          c.API.Title,
		TimeoutSeconds: c.API.TimeoutSeconds,
		RetryAttempts:  c.API.RetryAttempts,
	}
}

// JudgeLLM returns the settings for the judge verifier. It shares the [api]
// connection and only swaps the model when verification.judge_model is set.
func (c *Config) JudgeLLM() LLMConfig {
	cfg := c.LLM()
	if model := strings.TrimSpace(c.Verification.JudgeModel); model != "" {
		cfg.Model = model
	}
	cfg.Title = strings.TrimSpace(cfg.Title + " Judge")
	return cfg
}

// PersistenceEnabled reports whether results are written anywhere.
func (c *Config) PersistenceEnabled() bool {
	return strings.TrimSpace(c.Output.Path) != ""
}
