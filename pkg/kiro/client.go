package kiro

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/karthick-kk/kiro-gateway/pkg/observability"
)

const (
	targetGenerateResponse = "AmazonCodeWhispererStreamingService.GenerateAssistantResponse"
	targetListModels       = "AmazonCodeWhispererService.ListAvailableModels"

	clientUserAgent = "AmazonQ-For-CLI/1.23.1"

	// maxRetries is the retry cap beyond the first attempt.
	maxRetries = 3
)

// TokenSource supplies a valid access token and a forced refresh path
// for the upstream 403 case.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client issues requests against the provider's region-parameterized
// API. Transient failures are retried with exponential backoff; a 403
// triggers one forced token refresh and an immediate retry.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	endpoint     string
	tokens       TokenSource
	backoffBase  time.Duration
	fingerprint  string
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoint overrides the derived regional endpoint. Used in tests.
func WithEndpoint(url string) ClientOption {
	return func(c *Client) { c.endpoint = url }
}

// WithBackoffBase overrides the first backoff delay (default 1s; later
// attempts double it).
func WithBackoffBase(d time.Duration) ClientOption {
	return func(c *Client) { c.backoffBase = d }
}

// WithRequestTimeout sets the per-attempt timeout for non-streaming calls.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the given region.
func NewClient(tokens TokenSource, region string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		endpoint:    fmt.Sprintf("https://q.%s.amazonaws.com", region),
		tokens:      tokens,
		backoffBase: time.Second,
		fingerprint: machineFingerprint(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Streaming requests carry no timeout; a generation can
	// legitimately outlast any fixed deadline. Context cancellation
	// controls the request lifetime instead.
	c.streamClient = &http.Client{Transport: c.httpClient.Transport}

	return c
}

// GenerateResponse sends a generation request and returns the raw
// response body stream unbuffered. The caller owns closing it.
func (c *Client) GenerateResponse(ctx context.Context, payload *GenerateRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}

	resp, err := c.send(ctx, targetGenerateResponse, body, c.streamClient)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// ListModels fetches the provider's model listing.
func (c *Client) ListModels(ctx context.Context) ([]ModelSummary, error) {
	body, err := json.Marshal(listModelsRequest{Origin: "AI_EDITOR", MaxResults: 100})
	if err != nil {
		return nil, fmt.Errorf("encoding list models request: %w", err)
	}

	resp, err := c.send(ctx, targetListModels, body, c.httpClient)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listed listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("parsing list models response: %w", err)
	}
	return listed.Models, nil
}

// send issues the request with the retry policy: one forced-refresh
// retry on 403 with no delay, exponential backoff (1s, 2s, 4s) on
// 429/5xx/transport failures, and a hard cap of maxRetries beyond the
// first attempt. A 2xx response is returned with its body unread.
func (c *Client) send(ctx context.Context, target string, body []byte, client *http.Client) (*http.Response, error) {
	var lastErr *UpstreamError
	refreshed := false

	// attempt counts only backoff-class attempts; the single 403
	// forced-refresh retry does not consume a slot or shift the
	// backoff schedule.
	for attempt := 0; ; {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req, err := c.newRequest(ctx, target, body, token)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := client.Do(req)
		observability.UpstreamLatency.WithLabelValues(target).Observe(time.Since(start).Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			observability.UpstreamAttemptsTotal.WithLabelValues("timeout").Inc()
			lastErr = &UpstreamError{Kind: KindTimeout, Message: err.Error()}
		} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			observability.UpstreamAttemptsTotal.WithLabelValues("2xx").Inc()
			return resp, nil
		} else {
			status := resp.StatusCode
			message := readErrorBody(resp.Body)
			resp.Body.Close()
			observability.UpstreamAttemptsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
			lastErr = &UpstreamError{Status: status, Kind: classifyStatus(status), Message: message}

			switch lastErr.Kind {
			case KindAuth:
				if refreshed {
					return nil, lastErr
				}
				refreshed = true
				c.logger.Warn("upstream rejected token, forcing refresh", "status", status)
				if _, err := c.tokens.ForceRefresh(ctx); err != nil {
					return nil, err
				}
				// Immediate retry, no backoff.
				continue
			case KindRequest:
				// Non-retryable client error.
				return nil, lastErr
			}
		}

		if attempt >= maxRetries {
			return nil, lastErr
		}

		delay := c.backoffBase << attempt
		c.logger.Warn("retrying upstream request",
			"target", target,
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr.Error(),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		attempt++
	}
}

// newRequest builds a provider request with the AWS JSON 1.0 headers.
func (c *Client) newRequest(ctx context.Context, target string, body []byte, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-amz-json-1.0")
	req.Header.Set("X-Amz-Target", target)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("amz-sdk-invocation-id", uuid.NewString())
	req.Header.Set("amz-sdk-request", "attempt=1; max=1")
	req.Header.Set("User-Agent", clientUserAgent)
	req.Header.Set("x-amz-user-agent", clientUserAgent+" md/fingerprint#"+c.fingerprint)

	return req, nil
}

// readErrorBody extracts a short error message from a failed response.
func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil || len(data) == 0 {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(data)
}

// machineFingerprint derives a stable per-host identifier sent in the
// user agent, matching what the provider's own CLI reports.
func machineFingerprint() string {
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	sum := sha256.Sum256([]byte(host + "-" + user + "-kiro-gateway"))
	return hex.EncodeToString(sum[:])
}
