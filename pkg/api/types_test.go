package api

import "testing"

func TestContentText(t *testing.T) {
	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"string", "plain text", "plain text"},
		{"nil", nil, ""},
		{
			"parts",
			[]any{
				map[string]any{"type": "text", "text": "first "},
				map[string]any{"type": "text", "text": "second"},
			},
			"first second",
		},
		{
			"parts with non-text entries",
			[]any{
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://x"}},
				map[string]any{"type": "text", "text": "caption"},
			},
			"caption",
		},
		{"unsupported shape", 42, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentText(tt.content); got != tt.want {
				t.Errorf("ContentText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompletionIDFormats(t *testing.T) {
	if id := NewCompletionID(); len(id) != len("chatcmpl-")+32 {
		t.Errorf("completion id %q has unexpected length", id)
	}
	if id := NewToolCallID(); len(id) != len("call_")+8 {
		t.Errorf("tool call id %q has unexpected length", id)
	}
	if NewCompletionID() == NewCompletionID() {
		t.Error("completion ids collide")
	}
}
