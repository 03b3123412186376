package kiro

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

const (
	// chatTriggerManual marks a user-initiated generation.
	chatTriggerManual = "MANUAL"

	// defaultOrigin is the client origin reported to the provider.
	defaultOrigin = "AI_EDITOR"

	// maxToolDescriptionBytes is the provider's limit on a tool
	// description. Longer descriptions are truncated at a UTF-8
	// boundary.
	maxToolDescriptionBytes = 10237

	// continuationContent stands in for the user turn the provider
	// requires when the conversation ends on an assistant turn.
	continuationContent = "Continue."
)

// turn is the merged intermediate form of one conversation turn.
type turn struct {
	role        string
	text        string
	toolUses    []ToolUse
	toolResults []ToolResult
}

// BuildGenerateRequest converts an OpenAI-shaped chat request into the
// provider's conversationState payload. The conversion is pure:
// identical inputs (including conversationID) yield identical output.
//
// The provider has no system role and disallows adjacent same-role
// turns, so the system prompt is prefixed to the first user turn and
// consecutive same-role messages are merged in order. Tool-call and
// tool-result messages map into the provider's toolUses/toolResults
// slots, preserving call-id linkage.
func BuildGenerateRequest(req *api.ChatCompletionRequest, profileArn, conversationID string) (*GenerateRequest, error) {
	modelID, err := ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}

	system, turns := mergeTurns(req.Messages)

	if len(turns) == 0 || turns[len(turns)-1].role == "assistant" {
		turns = append(turns, turn{role: "user", text: continuationContent})
	}

	// Prefix the system prompt to the first user turn.
	if system != "" {
		for i := range turns {
			if turns[i].role == "user" {
				if turns[i].text != "" {
					turns[i].text = system + "\n\n" + turns[i].text
				} else {
					turns[i].text = system
				}
				break
			}
		}
	}

	current := turns[len(turns)-1]
	history := buildHistory(turns[:len(turns)-1], modelID)

	currentMsg := userMessage(current, modelID)
	ctxNeeded := len(req.Tools) > 0 || len(current.toolResults) > 0
	if ctxNeeded {
		if currentMsg.UserInputMessageContext == nil {
			currentMsg.UserInputMessageContext = &UserInputMessageContext{}
		}
		currentMsg.UserInputMessageContext.Tools = convertTools(req.Tools)
	}

	return &GenerateRequest{
		ConversationState: ConversationState{
			ChatTriggerType: chatTriggerManual,
			ConversationID:  conversationID,
			CurrentMessage:  CurrentMessage{UserInputMessage: currentMsg},
			History:         history,
		},
		ProfileArn: profileArn,
	}, nil
}

// mergeTurns collects system text and folds the remaining messages into
// alternating turns. Tool-result messages become user turns carrying
// toolResults; adjacent same-role turns are merged with content
// concatenated in original order.
func mergeTurns(messages []api.ChatMessage) (system string, turns []turn) {
	var systemParts []string

	for _, msg := range messages {
		var t turn
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, api.ContentText(msg.Content))
			continue
		case "user":
			t = turn{role: "user", text: api.ContentText(msg.Content)}
		case "assistant":
			t = turn{
				role:     "assistant",
				text:     api.ContentText(msg.Content),
				toolUses: convertToolCalls(msg.ToolCalls),
			}
		case "tool":
			t = turn{role: "user", toolResults: []ToolResult{{
				ToolUseID: msg.ToolCallID,
				Content:   []ToolResultContent{{Text: api.ContentText(msg.Content)}},
				Status:    "success",
			}}}
		default:
			continue
		}

		if n := len(turns); n > 0 && turns[n-1].role == t.role {
			prev := &turns[n-1]
			if t.text != "" {
				if prev.text != "" {
					prev.text += "\n" + t.text
				} else {
					prev.text = t.text
				}
			}
			prev.toolUses = append(prev.toolUses, t.toolUses...)
			prev.toolResults = append(prev.toolResults, t.toolResults...)
			continue
		}
		turns = append(turns, t)
	}

	return strings.Join(systemParts, "\n"), turns
}

// buildHistory converts past turns into provider history entries.
func buildHistory(turns []turn, modelID string) []HistoryEntry {
	var history []HistoryEntry
	for _, t := range turns {
		if t.role == "assistant" {
			history = append(history, HistoryEntry{
				AssistantResponseMessage: &AssistantResponseMessage{
					Content:  t.text,
					ToolUses: t.toolUses,
				},
			})
			continue
		}
		history = append(history, HistoryEntry{UserInputMessage: userMessage(t, modelID)})
	}
	return history
}

// userMessage builds a UserInputMessage from a user turn.
func userMessage(t turn, modelID string) *UserInputMessage {
	msg := &UserInputMessage{
		Content: t.text,
		ModelID: modelID,
		Origin:  defaultOrigin,
	}
	if len(t.toolResults) > 0 {
		msg.UserInputMessageContext = &UserInputMessageContext{ToolResults: t.toolResults}
	}
	return msg
}

// convertToolCalls maps assistant tool calls into provider toolUses.
func convertToolCalls(calls []api.ChatToolCall) []ToolUse {
	var uses []ToolUse
	for _, call := range calls {
		input := json.RawMessage(call.Function.Arguments)
		if !json.Valid(input) {
			input = json.RawMessage(`{}`)
		}
		uses = append(uses, ToolUse{
			ToolUseID: call.ID,
			Name:      call.Function.Name,
			Input:     input,
		})
	}
	return uses
}

// convertTools maps tool definitions into provider tool specifications.
func convertTools(tools []api.ChatTool) []Tool {
	var out []Tool
	for _, t := range tools {
		schema := t.Function.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, Tool{ToolSpecification: ToolSpecification{
			Name:        t.Function.Name,
			Description: truncateUTF8(t.Function.Description, maxToolDescriptionBytes),
			InputSchema: InputSchema{JSON: schema},
		}})
	}
	return out
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
