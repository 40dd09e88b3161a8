package dataset

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"chatbatch/internal/config"
	"chatbatch/internal/services"
	"chatbatch/internal/workitem"
)

// Project converts rows into work items. IDs are assigned from the row index.
// A configured system prompt is prepended to every conversation, including
// rows that already start with one.
func Project(rows []row, format string, model config.Model) ([]workitem.Item, error) {
	systemPrompt := norm.NFC.String(strings.TrimSpace(model.SystemPrompt))
	items := make([]workitem.Item, 0, len(rows))
	for idx, r := range rows {
		var messages []workitem.Message
		if systemPrompt != "" {
			messages = append(messages, workitem.Message{Role: workitem.RoleSystem, Content: systemPrompt})
		}
		switch format {
		case config.FormatMessagesColumn:
			if len(r.Messages) == 0 {
				return nil, services.Wrap(services.ErrValidation, "ingest", "project", fmt.Sprintf("row %d has no messages", idx), nil)
			}
			for pos, rec := range r.Messages {
				role, ok := workitem.ParseRole(rec.Role)
				if !ok {
					return nil, services.Wrap(services.ErrValidation, "ingest", "project",
						fmt.Sprintf("row %d message %d has unknown role %q", idx, pos, rec.Role), nil)
				}
				messages = append(messages, workitem.Message{
					Role:      role,
					Content:   norm.NFC.String(rec.Content),
					Reasoning: norm.NFC.String(rec.Reasoning),
				})
			}
		case config.FormatPromptColumn:
			if r.Prompt == nil {
				return nil, services.Wrap(services.ErrValidation, "ingest", "project", fmt.Sprintf("row %d has no prompt", idx), nil)
			}
			messages = append(messages, workitem.Message{Role: workitem.RoleUser, Content: norm.NFC.String(*r.Prompt)})
		default:
			return nil, services.Wrap(services.ErrConfiguration, "ingest", "project", fmt.Sprintf("unsupported format %q", format), nil)
		}
		items = append(items, workitem.Item{
			ID:          int64(idx),
			Messages:    messages,
			Temperature: model.Temperature,
			TopP:        model.TopP,
		})
	}
	return items, nil
}

func toMessagesRecords(items []workitem.Item) []messagesRecord {
	records := make([]messagesRecord, len(items))
	for i, item := range items {
		msgs := make([]messageRecord, len(item.Messages))
		for j, msg := range item.Messages {
			msgs[j] = messageRecord{Role: string(msg.Role), Content: msg.Content, Reasoning: msg.Reasoning}
		}
		records[i] = messagesRecord{Messages: msgs}
	}
	return records
}

// toPromptRecords keeps the first user message as the prompt and the first
// assistant message as the response.
func toPromptRecords(items []workitem.Item) []promptRecord {
	records := make([]promptRecord, len(items))
	for i, item := range items {
		prompt, _ := item.FirstUserPrompt()
		rec := promptRecord{Prompt: prompt}
		for _, msg := range item.Messages {
			if msg.Role == workitem.RoleAssistant {
				rec.Response = msg.Content
				rec.Reasoning = msg.Reasoning
				break
			}
		}
		records[i] = rec
	}
	return records
}
