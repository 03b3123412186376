package kiro

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
	"github.com/karthick-kk/kiro-gateway/pkg/observability"
)

// scanState is the scanner's position relative to an embedded object.
type scanState int

const (
	// scanEnvelope skips framing bytes between JSON objects.
	scanEnvelope scanState = iota

	// scanObject accumulates bytes of one top-level JSON object.
	scanObject
)

// Scanner incrementally decodes the provider's event stream. The
// framing embeds JSON objects in a line-oriented envelope whose object
// boundaries are not reliably newline-delimited, so the scanner tracks
// brace/bracket depth, string quoting, and escapes to find each
// complete top-level object before decoding it.
//
// A Scanner serves exactly one stream; create a fresh instance per
// request. Call Feed for every received chunk and Finish once at
// stream end to flush held-back text.
type Scanner struct {
	state    scanState
	depth    int
	inString bool
	escaped  bool
	obj      []byte

	// lastContent suppresses back-to-back replays of the same fragment.
	lastContent string

	// pending holds content text not yet released, because its tail may
	// be the beginning of an inline tool call marker.
	pending string

	// started/stopped track tool call ids so replayed tool events do
	// not reopen or re-close a call.
	started map[string]bool
	stopped map[string]bool

	logger *slog.Logger
}

// NewScanner creates a scanner for a single stream.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		started: make(map[string]bool),
		stopped: make(map[string]bool),
		logger:  logger,
	}
}

// Feed consumes one chunk of raw stream bytes and returns the semantic
// events completed by it. Feeding the same payload split at arbitrary
// byte boundaries yields the same event sequence as feeding it whole.
func (s *Scanner) Feed(chunk []byte) []Event {
	var events []Event

	for _, b := range chunk {
		switch s.state {
		case scanEnvelope:
			if b == '{' {
				s.state = scanObject
				s.depth = 1
				s.inString = false
				s.escaped = false
				s.obj = append(s.obj[:0], b)
			}

		case scanObject:
			s.obj = append(s.obj, b)

			if s.escaped {
				s.escaped = false
				continue
			}
			if s.inString {
				switch b {
				case '\\':
					s.escaped = true
				case '"':
					s.inString = false
				}
				continue
			}

			switch b {
			case '"':
				s.inString = true
			case '{', '[':
				s.depth++
			case '}', ']':
				s.depth--
				if s.depth == 0 {
					events = append(events, s.dispatch(s.obj)...)
					s.state = scanEnvelope
				}
			}
		}
	}

	return events
}

// Finish flushes state held across chunks: text withheld as a possible
// inline marker prefix is released as plain content. A partially
// accumulated object is discarded; streams may legitimately end
// mid-object on transport close.
func (s *Scanner) Finish() []Event {
	events := s.drainText(true)
	s.state = scanEnvelope
	s.obj = nil
	return events
}

// dispatch decodes a complete object and converts it to events. The
// event type lives either in a wrapper key or, for payloads already
// unwrapped by the transport framing, in the shape of the object
// itself. Malformed objects are logged and skipped; the stream
// continues.
func (s *Scanner) dispatch(obj []byte) []Event {
	if !gjson.ValidBytes(obj) {
		observability.ParseSkipsTotal.Inc()
		s.logger.Warn("skipping malformed event payload", "data", truncateForLog(string(obj), 200))
		return nil
	}

	root := gjson.ParseBytes(obj)

	if v := root.Get("assistantResponseEvent"); v.Exists() {
		return s.handleContent(v.Get("content").String())
	}
	if v := root.Get("toolUseEvent"); v.Exists() {
		return s.handleToolUse(v)
	}
	if v := root.Get("meteringEvent"); v.Exists() {
		return []Event{{Kind: EventUsage, Credits: v.Get("usage").Float()}}
	}
	if v := root.Get("messageMetadataEvent"); v.Exists() {
		return s.handleMetadata(v)
	}
	if root.Get("invalidStateEvent").Exists() || root.Get("followupPromptEvent").Exists() {
		return nil
	}

	// Bare payloads: classify by shape.
	switch {
	case root.Get("toolUseId").Exists():
		return s.handleToolUse(root)
	case root.Get("content").Exists():
		return s.handleContent(root.Get("content").String())
	case root.Get("unit").Exists() && root.Get("usage").Exists():
		return []Event{{Kind: EventUsage, Credits: root.Get("usage").Float()}}
	case root.Get("contextUsagePercentage").Exists() || root.Get("tokenUsage").Exists():
		return s.handleMetadata(root)
	}

	return nil
}

// handleContent applies replay suppression and inline marker
// normalization to a content fragment. The JSON decoder has already
// unescaped the text; no further unescaping happens here.
func (s *Scanner) handleContent(text string) []Event {
	if text == "" {
		return nil
	}
	if text == s.lastContent {
		return nil
	}
	s.lastContent = text

	s.pending += text
	return s.drainText(false)
}

// handleToolUse normalizes a structured tool event. The provider sends
// the input either as string fragments accumulated across events or as
// a complete object; stop=true finalizes the call.
func (s *Scanner) handleToolUse(v gjson.Result) []Event {
	id := v.Get("toolUseId").String()
	if id == "" {
		return nil
	}

	var events []Event

	if name := v.Get("name").String(); name != "" && !s.started[id] {
		s.started[id] = true
		events = append(events, Event{Kind: EventToolStart, ToolID: id, ToolName: name})
	}

	if input := v.Get("input"); input.Exists() {
		var fragment string
		if input.Type == gjson.String {
			fragment = input.String()
		} else {
			fragment = input.Raw
		}
		if fragment != "" {
			events = append(events, Event{Kind: EventToolInputDelta, ToolID: id, Fragment: fragment})
		}
	}

	if v.Get("stop").Bool() && !s.stopped[id] {
		s.stopped[id] = true
		events = append(events, Event{Kind: EventToolStop, ToolID: id})
	}

	return events
}

// handleMetadata extracts token counts and context usage from a
// messageMetadataEvent payload.
func (s *Scanner) handleMetadata(v gjson.Result) []Event {
	var events []Event

	if tu := v.Get("tokenUsage"); tu.Exists() {
		input := int(tu.Get("uncachedInputTokens").Int() + tu.Get("cacheReadInputTokens").Int())
		output := int(tu.Get("outputTokens").Int())
		if input == 0 && output == 0 {
			total := int(tu.Get("totalTokens").Int())
			input = total
		}
		events = append(events, Event{Kind: EventTokenUsage, InputTokens: input, OutputTokens: output})
	}

	if p := v.Get("contextUsagePercentage"); p.Exists() {
		events = append(events, Event{Kind: EventContextUsage, Percent: p.Float()})
	}

	return events
}

// inlineMarker opens the legacy inline tool call convention embedded in
// plain content text.
const inlineMarker = "[Called "

// inlineHead matches the marker head up to the argument object.
var inlineHead = regexp.MustCompile(`^\[Called\s+(\w+)\s+with\s+args:\s*`)

// drainText releases pending content as ContentDelta events, converting
// complete inline tool call markers into tool events. When flush is
// false, a tail that could still grow into a marker is withheld until
// more text or stream end arrives.
func (s *Scanner) drainText(flush bool) []Event {
	var events []Event

	for {
		idx := strings.Index(s.pending, inlineMarker)
		if idx < 0 {
			hold := 0
			if !flush {
				hold = markerPrefixLen(s.pending)
			}
			if release := s.pending[:len(s.pending)-hold]; release != "" {
				events = append(events, Event{Kind: EventContentDelta, Text: release})
			}
			s.pending = s.pending[len(s.pending)-hold:]
			return events
		}

		if idx > 0 {
			events = append(events, Event{Kind: EventContentDelta, Text: s.pending[:idx]})
			s.pending = s.pending[idx:]
		}

		callEvents, consumed, ok := parseInlineCall(s.pending)
		if !ok {
			if consumed < 0 {
				// Not a marker after all. Release the opening bracket
				// and keep scanning the rest as plain text.
				events = append(events, Event{Kind: EventContentDelta, Text: s.pending[:1]})
				s.pending = s.pending[1:]
				continue
			}
			// Incomplete marker: wait for more text, or give it back as
			// content at stream end.
			if flush {
				events = append(events, Event{Kind: EventContentDelta, Text: s.pending})
				s.pending = ""
			}
			return events
		}

		events = append(events, callEvents...)
		s.pending = s.pending[consumed:]
	}
}

// markerPrefixLen returns the length of the longest suffix of text that
// is a prefix of the inline marker.
func markerPrefixLen(text string) int {
	max := len(inlineMarker) - 1
	if max > len(text) {
		max = len(text)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(text, inlineMarker[:n]) {
			return n
		}
	}
	return 0
}

// parseInlineCall parses one complete "[Called name with args: {...}]"
// marker at the start of text. Returns the normalized tool events and
// the number of bytes consumed. ok is false when the marker is
// incomplete (consumed == 0) or when text cannot be a marker at all
// (consumed == -1).
func parseInlineCall(text string) (events []Event, consumed int, ok bool) {
	head := inlineHead.FindStringSubmatch(text)
	if head == nil {
		// The head regex needs the full "with args:" run before it can
		// match. Only rule the marker out once a closing bracket or a
		// generous amount of text has arrived without a match.
		if strings.ContainsRune(text, ']') || len(text) > 512 {
			return nil, -1, false
		}
		return nil, 0, false
	}

	argsStart := len(head[0])
	if argsStart >= len(text) || text[argsStart] != '{' {
		if argsStart >= len(text) {
			return nil, 0, false
		}
		return nil, -1, false
	}

	argsEnd := balancedEnd(text[argsStart:])
	if argsEnd < 0 {
		return nil, 0, false
	}
	args := text[argsStart : argsStart+argsEnd]

	// The closing "]" of the marker follows the argument object,
	// possibly after whitespace.
	rest := text[argsStart+argsEnd:]
	trimmed := strings.TrimLeft(rest, " \t\n")
	if trimmed == "" {
		return nil, 0, false
	}
	if trimmed[0] != ']' {
		return nil, -1, false
	}
	consumed = len(text) - len(trimmed) + 1

	id := api.NewToolCallID()
	events = []Event{
		{Kind: EventToolStart, ToolID: id, ToolName: head[1]},
		{Kind: EventToolInputDelta, ToolID: id, Fragment: args},
		{Kind: EventToolStop, ToolID: id},
	}
	return events, consumed, true
}

// balancedEnd scans a string starting with '{' and returns the length
// of the balanced object, or -1 when the object is still open.
func balancedEnd(text string) int {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		b := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// truncateForLog limits a string to maxLen characters for log output.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
