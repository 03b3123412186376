package kiro

// EventKind enumerates the semantic event types the scanner can emit.
// The set is closed; the streaming translator switches over it
// exhaustively.
type EventKind int

const (
	// EventContentDelta carries a fragment of assistant text.
	EventContentDelta EventKind = iota

	// EventToolStart opens a tool call with its id and function name.
	EventToolStart

	// EventToolInputDelta carries a fragment of a tool call's input.
	// Intermediate fragments may be syntactically incomplete JSON.
	EventToolInputDelta

	// EventToolStop finalizes a tool call. The accumulated input is
	// valid structured data only after this event.
	EventToolStop

	// EventUsage reports metered credit consumption.
	EventUsage

	// EventContextUsage reports context window consumption in percent.
	EventContextUsage

	// EventTokenUsage reports exact input/output token counts when the
	// provider supplies them.
	EventTokenUsage
)

// Event is the tagged variant produced by the Scanner. Kind selects
// which fields are meaningful.
type Event struct {
	Kind EventKind

	// Text is the content fragment for EventContentDelta.
	Text string

	// ToolID and ToolName identify a tool call. ToolName is set only on
	// EventToolStart.
	ToolID   string
	ToolName string

	// Fragment is the input fragment for EventToolInputDelta.
	Fragment string

	// Credits is the metered usage for EventUsage.
	Credits float64

	// Percent is the context usage for EventContextUsage.
	Percent float64

	// InputTokens and OutputTokens are set for EventTokenUsage.
	InputTokens  int
	OutputTokens int
}
