package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

// Gateway is the completion backend the handler dispatches to.
type Gateway interface {
	StreamCompletion(ctx context.Context, req *api.ChatCompletionRequest) (<-chan api.ChatCompletionChunk, error)
	Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletionResponse, error)
}

// Catalog serves the model listing.
type Catalog interface {
	List(ctx context.Context) []api.ChatModel
}

// Handler routes the OpenAI-compatible endpoints.
type Handler struct {
	gateway     Gateway
	catalog     Catalog
	logger      *slog.Logger
	maxBodySize int64
	mux         *http.ServeMux
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the structured logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) HandlerOption {
	return func(h *Handler) { h.maxBodySize = n }
}

// NewHandler creates a handler over the gateway and model catalog.
func NewHandler(gateway Gateway, catalog Catalog, opts ...HandlerOption) *Handler {
	h := &Handler{
		gateway:     gateway,
		catalog:     catalog,
		logger:      slog.Default(),
		maxBodySize: 10 << 20, // 10 MB
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleChatCompletions handles POST /v1/chat/completions.
func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", h.maxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	if req.Stream {
		h.streamCompletion(w, r, &req)
		return
	}

	resp, err := h.gateway.Complete(r.Context(), &req)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// streamCompletion runs the streaming path, writing one SSE data line
// per chunk. Failures before the first chunk produce a JSON error
// response; once streaming has begun the stream is simply ended.
func (h *Handler) streamCompletion(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest) {
	ch, err := h.gateway.StreamCompletion(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}

	sse := newSSEWriter(w)
	defer sse.Close()
	for chunk := range ch {
		if err := sse.WriteChunk(chunk); err != nil {
			h.logger.Debug("client disconnected mid-stream", "error", err.Error())
			// Drain so the gateway's pump goroutine can exit.
			for range ch {
			}
			return
		}
	}
	if err := sse.WriteDone(); err != nil {
		h.logger.Debug("client disconnected before [DONE]", "error", err.Error())
	}
}

// handleListModels handles GET /v1/models.
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	listing := h.catalog.List(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.ChatModelsResponse{Object: "list", Data: listing})
}

// handleHealthz handles GET /healthz.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// validateRequest checks the request invariants that fail before any
// upstream work happens.
func validateRequest(req *api.ChatCompletionRequest) *api.APIError {
	if req.Model == "" {
		return api.NewInvalidRequestError("model", "model is required")
	}
	if len(req.Messages) == 0 {
		return api.NewInvalidRequestError("messages", "messages must not be empty")
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case "system", "user", "assistant", "tool":
		default:
			return api.NewInvalidRequestError(
				fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("unknown role %q", msg.Role),
			)
		}
	}
	return nil
}
