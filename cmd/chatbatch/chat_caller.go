package main

import (
	"context"

	"chatbatch/internal/pipeline"
	"chatbatch/internal/services/llm"
	"chatbatch/internal/workitem"
)

// chatClient is the part of llm.Client the run command dispatches through.
type chatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.Reply, error)
}

// newChatCaller adapts a chat client to the pipeline. The configured model
// is applied by the client.
func newChatCaller(client chatClient) pipeline.Caller {
	return pipeline.CallerFunc(func(ctx context.Context, item workitem.Item) (workitem.Message, error) {
		messages := make([]llm.Message, len(item.Messages))
		for i, msg := range item.Messages {
			messages[i] = llm.Message{Role: string(msg.Role), Content: msg.Content}
		}
		reply, err := client.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Temperature: item.Temperature,
			TopP:        item.TopP,
		})
		if err != nil {
			return workitem.Message{}, err
		}
		return workitem.Message{
			Role:      workitem.RoleAssistant,
			Content:   reply.Content,
			Reasoning: reply.Reasoning,
		}, nil
	})
}
