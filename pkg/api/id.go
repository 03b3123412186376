package api

import (
	"crypto/rand"
	"encoding/hex"
)

// NewCompletionID generates a chat completion identifier of the form
// "chatcmpl-<hex>".
func NewCompletionID() string {
	return "chatcmpl-" + randomHex(16)
}

// NewToolCallID generates a tool call identifier of the form "call_<hex>".
func NewToolCallID() string {
	return "call_" + randomHex(4)
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
