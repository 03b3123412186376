// Package kiro adapts the Amazon Q Developer (CodeWhisperer) streaming
// chat API to the OpenAI Chat Completions format.
//
// The package contains the four translation stages: schema conversion
// between the two message formats (translate.go), an incremental
// event-stream scanner that decodes the provider framing into typed
// events (parser.go, events.go), an upstream HTTP client with the
// retry and token-refresh policy (client.go), and the streaming
// translator that re-encodes events as chat.completion.chunk values
// (stream.go).
package kiro
