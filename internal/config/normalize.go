package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	c.Model.SystemPrompt = strings.TrimSpace(c.Model.SystemPrompt)
	if err := c.normalizeData(); err != nil {
		return err
	}
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	c.normalizeVerification()
	if err := c.normalizeLogging(); err != nil {
		return err
	}
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	if c.API.APIKey == "" {
		for _, name := range []string{"CHATBATCH_API_KEY", "OPENAI_API_KEY"} {
			if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
				c.API.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	c.API.Model = strings.TrimSpace(c.API.Model)
	c.API.Referer = strings.TrimSpace(c.API.Referer)
	c.API.Title = strings.TrimSpace(c.API.Title)
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeData() error {
	c.Data.Type = strings.ToLower(strings.TrimSpace(c.Data.Type))
	if c.Data.Type == "" {
		c.Data.Type = DataTypeJSONL
	}
	c.Data.Format = strings.ToLower(strings.TrimSpace(c.Data.Format))
	if c.Data.Format == "" {
		c.Data.Format = FormatMessagesColumn
	}
	c.Data.Table = strings.TrimSpace(c.Data.Table)
	if c.Data.Table == "" {
		c.Data.Table = defaultSQLiteTable
	}
	c.Data.Path = strings.TrimSpace(c.Data.Path)
	// hf paths are dataset identifiers, not filesystem paths.
	if c.Data.Type != DataTypeHF {
		var err error
		if c.Data.Path, err = expandPath(c.Data.Path); err != nil {
			return fmt.Errorf("data.path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeOutput() error {
	var err error
	if c.Output.Path, err = expandPath(strings.TrimSpace(c.Output.Path)); err != nil {
		return fmt.Errorf("output.path: %w", err)
	}
	c.Output.Type = strings.ToLower(strings.TrimSpace(c.Output.Type))
	if c.Output.Type == "" {
		c.Output.Type = c.Data.Type
	}
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = c.Data.Format
	}
	c.Output.Table = strings.TrimSpace(c.Output.Table)
	if c.Output.Table == "" {
		c.Output.Table = c.Data.Table
	}
	return nil
}

func (c *Config) normalizeVerification() {
	c.Verification.Method = strings.ToLower(strings.TrimSpace(c.Verification.Method))
	if c.Verification.Method == "" {
		c.Verification.Method = defaultVerifyMethod
	}
	c.Verification.JudgePrompt = strings.TrimSpace(c.Verification.JudgePrompt)
	if c.Verification.JudgePrompt == "" {
		c.Verification.JudgePrompt = defaultJudgePrompt
	}
	c.Verification.JudgeModel = strings.TrimSpace(c.Verification.JudgeModel)
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.File, err = expandPath(strings.TrimSpace(c.Logging.File)); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}
