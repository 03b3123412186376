package kiro

import (
	"context"
	"strings"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

// CollectResponse drains a chunk stream into a single non-streaming
// chat.completion response: content deltas are concatenated, tool call
// deltas reassembled by index, and the last finish_reason and usage
// kept.
func CollectResponse(ctx context.Context, ch <-chan api.ChatCompletionChunk) (*api.ChatCompletionResponse, error) {
	var (
		id           string
		created      int64
		model        string
		content      strings.Builder
		finishReason = "stop"
		usage        *api.ChatUsage
	)

	type toolAcc struct {
		id   string
		name string
		args strings.Builder
	}
	toolsByIndex := make(map[int]*toolAcc)
	maxIndex := -1

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				var toolCalls []api.ChatToolCall
				for i := 0; i <= maxIndex; i++ {
					acc, exists := toolsByIndex[i]
					if !exists {
						continue
					}
					toolCalls = append(toolCalls, api.ChatToolCall{
						ID:   acc.id,
						Type: "function",
						Function: api.ChatFunctionCall{
							Name:      acc.name,
							Arguments: acc.args.String(),
						},
					})
				}

				message := api.ChatMessage{Role: "assistant", Content: content.String()}
				message.ToolCalls = toolCalls

				return &api.ChatCompletionResponse{
					ID:      id,
					Object:  "chat.completion",
					Created: created,
					Model:   model,
					Choices: []api.ChatChoice{{
						Message:      message,
						FinishReason: finishReason,
					}},
					Usage: usage,
				}, nil
			}

			id = chunk.ID
			created = chunk.Created
			model = chunk.Model
			if chunk.Usage != nil {
				usage = chunk.Usage
			}

			for _, choice := range chunk.Choices {
				if choice.FinishReason != nil {
					finishReason = *choice.FinishReason
				}
				if choice.Delta.Content != nil {
					content.WriteString(*choice.Delta.Content)
				}
				for _, tc := range choice.Delta.ToolCalls {
					acc, exists := toolsByIndex[tc.Index]
					if !exists {
						acc = &toolAcc{}
						toolsByIndex[tc.Index] = acc
						if tc.Index > maxIndex {
							maxIndex = tc.Index
						}
					}
					if tc.ID != "" {
						acc.id = tc.ID
					}
					if tc.Function.Name != "" {
						acc.name = tc.Function.Name
					}
					acc.args.WriteString(tc.Function.Arguments)
				}
			}
		}
	}
}
