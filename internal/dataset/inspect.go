package dataset

import (
	"context"
	"os"

	"chatbatch/internal/config"
	"chatbatch/internal/services"
)

// Summary describes a persisted output or checkpoint file.
type Summary struct {
	Path          string `json:"path"`
	Type          string `json:"type"`
	Format        string `json:"format"`
	SizeBytes     int64  `json:"size_bytes"`
	Rows          int    `json:"rows"`
	Answered      int    `json:"answered"`
	WithReasoning int    `json:"with_reasoning"`
	Messages      int    `json:"messages"`
	ResponseChars int    `json:"response_chars"`
}

// Inspect reads a persisted file and counts its rows and replies.
func (l *Loader) Inspect(ctx context.Context, data config.Data) (Summary, error) {
	summary := Summary{Path: data.Path, Type: data.Type, Format: data.Format}
	if data.Type != config.DataTypeHF {
		info, err := os.Stat(data.Path)
		if err != nil {
			return summary, services.Wrap(services.ErrNotFound, "inspect", "stat", data.Path, err)
		}
		summary.SizeBytes = info.Size()
	}
	rows, err := l.readRows(ctx, data)
	if err != nil {
		return summary, err
	}
	summary.Rows = len(rows)
	for _, r := range rows {
		if data.Format == config.FormatPromptColumn {
			summary.Messages++
			if r.Response != "" {
				summary.Messages++
				summary.Answered++
				summary.ResponseChars += len([]rune(r.Response))
			}
			if r.Reasoning != "" {
				summary.WithReasoning++
			}
			continue
		}
		summary.Messages += len(r.Messages)
		for _, msg := range r.Messages {
			if msg.Role != "assistant" {
				continue
			}
			summary.Answered++
			summary.ResponseChars += len([]rune(msg.Content))
			if msg.Reasoning != "" {
				summary.WithReasoning++
			}
			break
		}
	}
	return summary, nil
}
