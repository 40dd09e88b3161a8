package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"chatbatch/internal/config"
	"chatbatch/internal/logging"
	"chatbatch/internal/pipeline"
	"chatbatch/internal/services"
	"chatbatch/internal/services/llm"
	"chatbatch/internal/workitem"
)

var errNoReply = errors.New("item has no assistant reply")

func reply(item workitem.Item) (string, error) {
	msg, ok := item.LastReply()
	if !ok {
		return "", errNoReply
	}
	return msg.Content, nil
}

// NonEmpty accepts any reply with non-whitespace content.
type NonEmpty struct{}

// Verify implements pipeline.Verifier.
func (NonEmpty) Verify(_ context.Context, item workitem.Item) (bool, error) {
	content, err := reply(item)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(content) != "", nil
}

// MinLength accepts replies with at least Min characters after trimming.
type MinLength struct {
	Min int
}

// Verify implements pipeline.Verifier.
func (m MinLength) Verify(_ context.Context, item workitem.Item) (bool, error) {
	content, err := reply(item)
	if err != nil {
		return false, err
	}
	return utf8.RuneCountInString(strings.TrimSpace(content)) >= m.Min, nil
}

// Regex accepts replies the pattern matches anywhere.
type Regex struct {
	pattern *regexp.Regexp
}

// NewRegex compiles pattern.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "verify", "compile pattern", pattern, err)
	}
	return &Regex{pattern: re}, nil
}

// Verify implements pipeline.Verifier.
func (r *Regex) Verify(_ context.Context, item workitem.Item) (bool, error) {
	content, err := reply(item)
	if err != nil {
		return false, err
	}
	return r.pattern.MatchString(content), nil
}

// New builds the verifier selected by the verification section. It returns
// nil when verification is disabled.
func New(cfg *config.Config, logger *slog.Logger, opts ...llm.Option) (pipeline.Verifier, error) {
	if cfg == nil || !cfg.Verification.Enabled {
		return nil, nil
	}
	v := cfg.Verification
	switch v.Method {
	case config.VerifyNonEmpty:
		return NonEmpty{}, nil
	case config.VerifyMinLength:
		return MinLength{Min: v.MinLength}, nil
	case config.VerifyRegex:
		re, err := NewRegex(v.Pattern)
		if err != nil {
			return nil, err
		}
		return re, nil
	case config.VerifyJudge:
		client := llm.NewClientFrom(cfg.JudgeLLM(), opts...)
		return NewJudge(client, v.JudgePrompt, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "verify", "select method", fmt.Sprintf("unknown method %q", v.Method), nil)
	}
}

// describe renders an item for log context.
func describe(item workitem.Item) []logging.Attr {
	return []logging.Attr{
		logging.ItemID(item.ID),
		logging.Int("attempts", item.Attempts),
	}
}
