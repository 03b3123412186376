package kiro

import (
	"context"
	"testing"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

// translateAll runs events through a fresh translator and appends the
// terminal chunks.
func translateAll(t *testing.T, events []Event) []api.ChatCompletionChunk {
	t.Helper()
	tr := newChunkTranslator("claude-sonnet-4")

	var chunks []api.ChatCompletionChunk
	for _, ev := range events {
		chunks = append(chunks, tr.OnEvent(ev)...)
	}
	return append(chunks, tr.Finish()...)
}

// collectChunks assembles chunks into a response for assertions.
func collectChunks(t *testing.T, chunks []api.ChatCompletionChunk) *api.ChatCompletionResponse {
	t.Helper()
	ch := make(chan api.ChatCompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)

	resp, err := CollectResponse(context.Background(), ch)
	if err != nil {
		t.Fatalf("CollectResponse() error: %v", err)
	}
	return resp
}

func TestTranslatorTextStream(t *testing.T) {
	chunks := translateAll(t, []Event{
		{Kind: EventContentDelta, Text: "Hello"},
		{Kind: EventContentDelta, Text: " world"},
	})

	if len(chunks) < 4 {
		t.Fatalf("expected role + 2 deltas + finish, got %d chunks", len(chunks))
	}

	// First chunk announces the assistant role.
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Errorf("first chunk role = %q", chunks[0].Choices[0].Delta.Role)
	}

	// Last content-bearing chunks carry the deltas in order.
	if got := *chunks[1].Choices[0].Delta.Content; got != "Hello" {
		t.Errorf("first delta = %q", got)
	}
	if got := *chunks[2].Choices[0].Delta.Content; got != " world" {
		t.Errorf("second delta = %q", got)
	}

	// Finish chunk says stop.
	last := chunks[len(chunks)-1]
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Errorf("finish chunk = %+v", last)
	}
}

func TestTranslatorToolCallRun(t *testing.T) {
	chunks := translateAll(t, []Event{
		{Kind: EventToolStart, ToolID: "t1", ToolName: "get_weather"},
		{Kind: EventToolInputDelta, ToolID: "t1", Fragment: `{"location":`},
		{Kind: EventToolInputDelta, ToolID: "t1", Fragment: `"NYC"}`},
		{Kind: EventToolStop, ToolID: "t1"},
	})

	resp := collectChunks(t, chunks)

	// The run collapses into exactly one tool call with the assembled
	// arguments.
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1: %+v", len(calls), calls)
	}
	if calls[0].Function.Name != "get_weather" {
		t.Errorf("name = %q", calls[0].Function.Name)
	}
	if calls[0].Function.Arguments != `{"location":"NYC"}` {
		t.Errorf("arguments = %q", calls[0].Function.Arguments)
	}
	if calls[0].ID != "t1" {
		t.Errorf("id = %q", calls[0].ID)
	}
	if resp.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q", resp.Choices[0].FinishReason)
	}
}

func TestTranslatorEmptyStreamStillTerminates(t *testing.T) {
	chunks := translateAll(t, nil)

	// Even a stream with no events yields a role chunk and a finish
	// chunk, so the client always sees a well-formed termination.
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Errorf("first chunk = %+v", chunks[0])
	}
	if chunks[1].Choices[0].FinishReason == nil || *chunks[1].Choices[0].FinishReason != "stop" {
		t.Errorf("second chunk = %+v", chunks[1])
	}
}

func TestTranslatorUsageFromTokenCounts(t *testing.T) {
	chunks := translateAll(t, []Event{
		{Kind: EventContentDelta, Text: "Hi"},
		{Kind: EventTokenUsage, InputTokens: 120, OutputTokens: 30},
	})

	last := chunks[len(chunks)-1]
	if last.Usage == nil {
		t.Fatal("no trailing usage chunk")
	}
	if last.Usage.PromptTokens != 120 || last.Usage.CompletionTokens != 30 || last.Usage.TotalTokens != 150 {
		t.Errorf("usage = %+v", last.Usage)
	}
}

func TestTranslatorUsageEstimatedFromContextPercent(t *testing.T) {
	chunks := translateAll(t, []Event{
		{Kind: EventContentDelta, Text: "12345678"},
		{Kind: EventContextUsage, Percent: 1.5},
	})

	last := chunks[len(chunks)-1]
	if last.Usage == nil {
		t.Fatal("no trailing usage chunk")
	}
	// 1.5% of the assumed 200k window, output estimated at len/4.
	if last.Usage.PromptTokens != 3000 {
		t.Errorf("prompt tokens = %d, want 3000", last.Usage.PromptTokens)
	}
	if last.Usage.CompletionTokens != 2 {
		t.Errorf("completion tokens = %d, want 2", last.Usage.CompletionTokens)
	}
}

func TestTranslatorNoUsageChunkWithoutSignal(t *testing.T) {
	chunks := translateAll(t, []Event{
		{Kind: EventContentDelta, Text: "Hi"},
	})

	for _, c := range chunks {
		if c.Usage != nil {
			t.Errorf("unexpected usage chunk: %+v", c)
		}
	}
}
