package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatbatch/internal/logging"
	"chatbatch/internal/services"
	"chatbatch/internal/services/llm"
	"chatbatch/internal/workitem"
)

// Completer is the subset of the LLM client the judge needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Verdict is the judge model's JSON answer.
type Verdict struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

// Judge asks a second model whether a reply satisfies the conversation.
type Judge struct {
	client Completer
	prompt string
	logger *slog.Logger
}

// NewJudge wraps client with the given system prompt.
func NewJudge(client Completer, prompt string, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Judge{
		client: client,
		prompt: strings.TrimSpace(prompt),
		logger: logging.NewComponentLogger(logger, "judge"),
	}
}

// Verify implements pipeline.Verifier. Transport and decode failures are
// returned as errors and count as rejections upstream.
func (j *Judge) Verify(ctx context.Context, item workitem.Item) (bool, error) {
	content, err := reply(item)
	if err != nil {
		return false, err
	}
	raw, err := j.client.CompleteJSON(ctx, j.prompt, transcript(item, content))
	if err != nil {
		return false, services.Wrap(services.ErrExternalTool, "verify", "judge", "completion failed", err)
	}
	var verdict Verdict
	if err := llm.DecodeLLMJSON(raw, &verdict); err != nil {
		return false, services.Wrap(services.ErrValidation, "verify", "judge", "decode verdict", err)
	}
	if !verdict.Accept {
		attrs := append(describe(item), logging.String("reason", verdict.Reason))
		j.logger.DebugContext(ctx, "judge rejected reply", logging.Args(attrs...)...)
	}
	return verdict.Accept, nil
}

// transcript renders the conversation up to the reply followed by the reply
// under review.
func transcript(item workitem.Item, content string) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, msg := range item.Messages[:len(item.Messages)-1] {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	b.WriteString("\nReply under review:\n")
	b.WriteString(content)
	return b.String()
}
