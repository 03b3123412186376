package kiro

import "encoding/json"

// Upstream wire types for the GenerateAssistantResponse and
// ListAvailableModels calls. These shapes are an external contract and
// are produced/consumed field-for-field.

// GenerateRequest is the body of a GenerateAssistantResponse call.
type GenerateRequest struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

// ConversationState carries the conversation history and the message
// being answered.
type ConversationState struct {
	ChatTriggerType string         `json:"chatTriggerType"`
	ConversationID  string         `json:"conversationId"`
	CurrentMessage  CurrentMessage `json:"currentMessage"`
	History         []HistoryEntry `json:"history,omitempty"`
}

// CurrentMessage wraps the user message being answered.
type CurrentMessage struct {
	UserInputMessage *UserInputMessage `json:"userInputMessage,omitempty"`
}

// HistoryEntry is one past turn. Exactly one of the two fields is set.
type HistoryEntry struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UserInputMessage is a user turn, optionally carrying tool definitions
// and tool results in its context.
type UserInputMessage struct {
	Content                 string                   `json:"content"`
	ModelID                 string                   `json:"modelId,omitempty"`
	Origin                  string                   `json:"origin,omitempty"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// UserInputMessageContext carries tool definitions and results for a
// user turn.
type UserInputMessageContext struct {
	Tools       []Tool       `json:"tools,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// Tool wraps a tool specification.
type Tool struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

// ToolSpecification describes one callable tool.
type ToolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps a JSON schema document.
type InputSchema struct {
	JSON json.RawMessage `json:"json"`
}

// ToolResult is the outcome of one tool invocation, linked by toolUseId.
type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status"`
}

// ToolResultContent is one block of tool result output.
type ToolResultContent struct {
	Text string `json:"text"`
}

// AssistantResponseMessage is an assistant turn in the history.
type AssistantResponseMessage struct {
	Content  string    `json:"content"`
	ToolUses []ToolUse `json:"toolUses,omitempty"`
}

// ToolUse is one tool invocation recorded in an assistant turn.
type ToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// listModelsRequest is the body of a ListAvailableModels call.
type listModelsRequest struct {
	Origin     string `json:"origin,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// listModelsResponse is the body returned by ListAvailableModels.
type listModelsResponse struct {
	Models []ModelSummary `json:"models"`
}

// ModelSummary describes one model as reported by the provider.
type ModelSummary struct {
	ModelID             string `json:"modelId"`
	ModelName           string `json:"modelName,omitempty"`
	Description         string `json:"description,omitempty"`
	ContextWindowTokens int    `json:"contextWindowTokens,omitempty"`
}
