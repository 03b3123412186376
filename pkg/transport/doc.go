// Package transport serves the OpenAI-compatible HTTP surface. It
// decodes and validates chat completion requests, dispatches them to
// the gateway, and writes either a buffered JSON response or an SSE
// chunk stream. Errors from the translation layers are mapped to the
// outbound error envelope here.
package transport
