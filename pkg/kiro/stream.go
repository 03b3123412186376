package kiro

import (
	"strings"
	"time"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
	"github.com/karthick-kk/kiro-gateway/pkg/observability"
)

// contextWindowTokens is the assumed context window used to estimate
// input tokens from a context-usage percentage when the provider omits
// exact counts.
const contextWindowTokens = 200000

// toolState tracks one open tool call during a stream.
type toolState struct {
	index int
	name  string
	args  strings.Builder
}

// chunkTranslator converts the scanner's event sequence into OpenAI
// chat.completion.chunk values. It keeps only per-stream state: the
// open tool calls and enough accounting to emit the trailing finish and
// usage chunks.
type chunkTranslator struct {
	id      string
	model   string
	created int64

	sentRole   bool
	tools      map[string]*toolState
	toolCount  int
	sawTool    bool
	contentLen int

	credits     float64
	sawCredits  bool
	percent     float64
	sawPercent  bool
	inputTokens int
	outTokens   int
	sawTokens   bool
}

// newChunkTranslator creates a translator for one stream.
func newChunkTranslator(model string) *chunkTranslator {
	return &chunkTranslator{
		id:      api.NewCompletionID(),
		model:   model,
		created: time.Now().Unix(),
		tools:   make(map[string]*toolState),
	}
}

// chunk builds an empty chunk carrying the stream identity.
func (t *chunkTranslator) chunk() api.ChatCompletionChunk {
	return api.ChatCompletionChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
	}
}

// roleChunk emits the leading chunk announcing the assistant role.
func (t *chunkTranslator) roleChunk() api.ChatCompletionChunk {
	c := t.chunk()
	c.Choices = []api.ChatChunkChoice{{
		Delta: api.ChatChunkDelta{Role: "assistant"},
	}}
	return c
}

// OnEvent translates one semantic event into zero or more chunks.
func (t *chunkTranslator) OnEvent(ev Event) []api.ChatCompletionChunk {
	var chunks []api.ChatCompletionChunk
	if !t.sentRole {
		t.sentRole = true
		chunks = append(chunks, t.roleChunk())
	}

	switch ev.Kind {
	case EventContentDelta:
		t.contentLen += len(ev.Text)
		text := ev.Text
		c := t.chunk()
		c.Choices = []api.ChatChunkChoice{{
			Delta: api.ChatChunkDelta{Content: &text},
		}}
		chunks = append(chunks, c)

	case EventToolStart:
		t.sawTool = true
		state := &toolState{index: t.toolCount, name: ev.ToolName}
		t.toolCount++
		t.tools[ev.ToolID] = state

		c := t.chunk()
		c.Choices = []api.ChatChunkChoice{{
			Delta: api.ChatChunkDelta{ToolCalls: []api.ChatChunkToolCall{{
				Index:    state.index,
				ID:       ev.ToolID,
				Type:     "function",
				Function: api.ChatChunkFunctionCall{Name: ev.ToolName},
			}}},
		}}
		chunks = append(chunks, c)

	case EventToolInputDelta:
		state, ok := t.tools[ev.ToolID]
		if !ok {
			return chunks
		}
		state.args.WriteString(ev.Fragment)

		c := t.chunk()
		c.Choices = []api.ChatChunkChoice{{
			Delta: api.ChatChunkDelta{ToolCalls: []api.ChatChunkToolCall{{
				Index:    state.index,
				Function: api.ChatChunkFunctionCall{Arguments: ev.Fragment},
			}}},
		}}
		chunks = append(chunks, c)

	case EventToolStop:
		// The outbound protocol closes tool calls implicitly via the
		// finish_reason chunk; nothing is emitted per call.

	case EventUsage:
		t.credits = ev.Credits
		t.sawCredits = true

	case EventContextUsage:
		t.percent = ev.Percent
		t.sawPercent = true

	case EventTokenUsage:
		t.inputTokens = ev.InputTokens
		t.outTokens = ev.OutputTokens
		t.sawTokens = true
	}

	return chunks
}

// Finish emits the terminal chunks: a finish_reason chunk and, when the
// stream carried any usage signal, a trailing usage summary. It is
// called on normal stream end and on abrupt upstream close alike, so a
// dropped connection still yields a well-formed response tail.
func (t *chunkTranslator) Finish() []api.ChatCompletionChunk {
	var chunks []api.ChatCompletionChunk
	if !t.sentRole {
		t.sentRole = true
		chunks = append(chunks, t.roleChunk())
	}

	reason := "stop"
	if t.sawTool {
		reason = "tool_calls"
	}
	c := t.chunk()
	c.Choices = []api.ChatChunkChoice{{
		Delta:        api.ChatChunkDelta{},
		FinishReason: &reason,
	}}
	chunks = append(chunks, c)

	if usage := t.usage(); usage != nil {
		u := t.chunk()
		u.Choices = []api.ChatChunkChoice{}
		u.Usage = usage
		chunks = append(chunks, u)

		observability.TokensTotal.WithLabelValues(t.model, "input").Add(float64(usage.PromptTokens))
		observability.TokensTotal.WithLabelValues(t.model, "output").Add(float64(usage.CompletionTokens))
	}

	return chunks
}

// usage assembles the usage summary, estimating missing counts: input
// from the context usage percentage, output from the emitted content
// length.
func (t *chunkTranslator) usage() *api.ChatUsage {
	if !t.sawTokens && !t.sawPercent && !t.sawCredits {
		return nil
	}

	input := t.inputTokens
	output := t.outTokens
	if !t.sawTokens {
		if t.sawPercent {
			input = int(t.percent * contextWindowTokens / 100)
		}
		output = t.contentLen / 4
	}

	return &api.ChatUsage{
		PromptTokens:     input,
		CompletionTokens: output,
		TotalTokens:      input + output,
	}
}
