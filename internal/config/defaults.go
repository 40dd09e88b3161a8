package config

const (
	defaultConfigPath     = "~/.config/chatbatch/config.toml"
	projectConfigName     = "config.toml"
	defaultBaseURL        = "https://openrouter.ai/api/v1"
	defaultTimeoutSeconds = 120
	defaultRetryAttempts  = 1
	defaultReferer        = "https://github.com/chatbatch/chatbatch"
	defaultTitle          = "chatbatch"
	defaultParallel       = 8
	defaultVerifyMethod   = VerifyNonEmpty
	defaultSQLiteTable    = "requests"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

const defaultJudgePrompt = `You review assistant replies. Respond with JSON only:
{"accept": true|false, "reason": "short explanation"}
Accept replies that answer the user's request directly and completely.`

// Dataset types.
const (
	DataTypeJSONL   = "jsonl"
	DataTypeParquet = "parquet"
	DataTypeSQLite  = "sqlite"
	DataTypeHF      = "hf"
)

// Dataset projection formats.
const (
	FormatMessagesColumn = "messages_column"
	FormatPromptColumn   = "prompt_column"
)

// Verification methods.
const (
	VerifyNonEmpty  = "non_empty"
	VerifyRegex     = "regex"
	VerifyMinLength = "min_length"
	VerifyJudge     = "judge"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:        defaultBaseURL,
			TimeoutSeconds: defaultTimeoutSeconds,
			RetryAttempts:  defaultRetryAttempts,
			Referer:        defaultReferer,
			Title:          defaultTitle,
		},
		Data: Data{
			Type:   DataTypeJSONL,
			Format: FormatMessagesColumn,
			Table:  defaultSQLiteTable,
		},
		Processes: Processes{
			Parallel: defaultParallel,
		},
		Verification: Verification{
			Method:      defaultVerifyMethod,
			JudgePrompt: defaultJudgePrompt,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
