package kiro

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

// Gateway ties the translation stages together behind the two
// operations the boundary layer needs: a streaming completion and a
// buffered one.
type Gateway struct {
	client     *Client
	profileArn string
	logger     *slog.Logger
}

// NewGateway creates a gateway around an upstream client. profileArn is
// attached to every generation request.
func NewGateway(client *Client, profileArn string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, profileArn: profileArn, logger: logger}
}

// StreamCompletion converts the request, opens the upstream stream, and
// returns a channel of outbound chunks. The channel is closed when the
// upstream stream ends or the context is cancelled. Request conversion
// errors (unknown model) and upstream failures before the first byte
// are returned synchronously.
func (g *Gateway) StreamCompletion(ctx context.Context, req *api.ChatCompletionRequest) (<-chan api.ChatCompletionChunk, error) {
	payload, err := BuildGenerateRequest(req, g.profileArn, uuid.NewString())
	if err != nil {
		return nil, err
	}

	body, err := g.client.GenerateResponse(ctx, payload)
	if err != nil {
		return nil, err
	}

	ch := make(chan api.ChatCompletionChunk, 16)
	go func() {
		defer close(ch)
		defer body.Close()
		g.pump(ctx, body, req.Model, ch)
	}()

	return ch, nil
}

// Complete runs the streaming path to completion and assembles the
// chunks into a single response.
func (g *Gateway) Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error) {
	ch, err := g.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return CollectResponse(ctx, ch)
}

// ListModels exposes the provider model listing to the catalog.
func (g *Gateway) ListModels(ctx context.Context) ([]ModelSummary, error) {
	return g.client.ListModels(ctx)
}

// pump reads the upstream body, feeds the scanner, and forwards
// translated chunks. On client disconnect the read loop stops and
// partially built tool state is discarded; on upstream EOF the
// translator's terminal chunks are still emitted.
func (g *Gateway) pump(ctx context.Context, body io.Reader, model string, ch chan<- api.ChatCompletionChunk) {
	scanner := NewScanner(g.logger)
	translator := newChunkTranslator(model)
	buf := make([]byte, 4096)

	send := func(chunks []api.ChatCompletionChunk) bool {
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range scanner.Feed(buf[:n]) {
				if !send(translator.OnEvent(ev)) {
					return
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				// Client disconnect: stop without emitting the terminal
				// chunks, nobody is reading them.
				return
			}
			if err != io.EOF {
				g.logger.Warn("upstream stream ended abnormally", "error", err.Error())
			}
			for _, ev := range scanner.Finish() {
				if !send(translator.OnEvent(ev)) {
					return
				}
			}
			send(translator.Finish())
			return
		}
	}
}
