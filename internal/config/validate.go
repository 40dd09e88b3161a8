package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateAPI,
		c.validateModel,
		c.validateData,
		c.validateProcesses,
		c.validateOutput,
		c.validateVerification,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("api.api_key is required. Set CHATBATCH_API_KEY env var or edit %s (create with 'chatbatch config init')", defaultPath)
	}
	if c.API.Model == "" {
		return errors.New("api.model must be set")
	}
	if parsed, err := url.Parse(c.API.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	return nil
}

func (c *Config) validateModel() error {
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		return errors.New("model.temperature must be between 0 and 2")
	}
	if p := c.Model.TopP; p != nil && (*p <= 0 || *p > 1) {
		return errors.New("model.top_p must be greater than 0 and at most 1")
	}
	return nil
}

func (c *Config) validateData() error {
	if c.Data.Path == "" {
		return errors.New("data.path must be set")
	}
	if !slices.Contains(dataTypes, c.Data.Type) {
		return fmt.Errorf("data.type must be one of %v, got %q", dataTypes, c.Data.Type)
	}
	if !slices.Contains(formats, c.Data.Format) {
		return fmt.Errorf("data.format must be one of %v, got %q", formats, c.Data.Format)
	}
	if c.Data.Limit < 0 {
		return errors.New("data.limit must be zero or positive")
	}
	return nil
}

func (c *Config) validateProcesses() error {
	if c.Processes.Parallel < 1 {
		return errors.New("processes.parallel must be at least 1")
	}
	if c.Processes.MaxAttempts < 0 {
		return errors.New("processes.max_attempts must be zero (unbounded) or positive")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.CheckpointInterval < 0 {
		return errors.New("output.checkpoint_interval must be zero or positive")
	}
	if !c.PersistenceEnabled() {
		if c.Output.CheckpointInterval > 0 {
			return errors.New("output.checkpoint_interval requires output.path")
		}
		return nil
	}
	if !slices.Contains(dataTypes, c.Output.Type) {
		return fmt.Errorf("output.type must be one of %v, got %q", dataTypes, c.Output.Type)
	}
	if !slices.Contains(formats, c.Output.Format) {
		return fmt.Errorf("output.format must be one of %v, got %q", formats, c.Output.Format)
	}
	return nil
}

func (c *Config) validateVerification() error {
	if !c.Verification.Enabled {
		return nil
	}
	if c.Verification.Workers < 0 {
		return errors.New("verification.workers must be zero (same as processes.parallel) or positive")
	}
	switch c.Verification.Method {
	case VerifyNonEmpty:
	case VerifyRegex:
		if c.Verification.Pattern == "" {
			return errors.New("verification.pattern must be set when verification.method is regex")
		}
		if _, err := regexp.Compile(c.Verification.Pattern); err != nil {
			return fmt.Errorf("verification.pattern: %w", err)
		}
	case VerifyMinLength:
		if c.Verification.MinLength < 1 {
			return errors.New("verification.min_length must be positive when verification.method is min_length")
		}
	case VerifyJudge:
	default:
		return fmt.Errorf("verification.method must be one of %v, got %q", verifyMethods, c.Verification.Method)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

var (
	dataTypes     = []string{DataTypeJSONL, DataTypeParquet, DataTypeSQLite, DataTypeHF}
	formats       = []string{FormatMessagesColumn, FormatPromptColumn}
	verifyMethods = []string{VerifyNonEmpty, VerifyRegex, VerifyMinLength, VerifyJudge}
)
