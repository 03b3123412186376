// Package api defines the OpenAI-compatible Chat Completions wire types
// exposed by the gateway, together with the structured error taxonomy
// used across all layers.
package api
