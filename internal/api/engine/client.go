// Package engine is the HTTP client for the self-fixing AI backend: the
// one-shot explanation endpoint and the streaming reasoning endpoint.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/selffix/reasonview/internal/domain"
	"github.com/selffix/reasonview/internal/stream"
)

const (
	defaultBaseURL = "http://localhost:8000"

	explainPath = "/explain"
	chatPath    = "/chat-tot"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for the reasoning engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new engine client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type explainRequest struct {
	Query            string `json:"query"`
	IncludeReasoning bool   `json:"include_reasoning"`
}

type chatRequest struct {
	Message string      `json:"message"`
	Context chatContext `json:"context"`
}

type chatContext struct {
	ExplanationMode bool `json:"explanation_mode"`
}

// Explain issues the synchronous explanation request for a query and
// validates the body into an ExplanationSnapshot. A single failed attempt
// surfaces as a RequestError; retry policy belongs to the caller.
func (c *Client) Explain(ctx context.Context, query string) (*domain.ExplanationSnapshot, error) {
	body, err := json.Marshal(explainRequest{Query: query, IncludeReasoning: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+explainPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.RequestError{Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.RequestError{Detail: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RequestError{StatusCode: resp.StatusCode, Detail: truncate(string(respBody), 512)}
	}

	// Pointer fields so absent and empty are distinguishable.
	var raw struct {
		RetrievedDocs       *[]domain.RetrievedDoc  `json:"retrieved_docs"`
		ReasoningTree       *[]domain.ReasoningStep `json:"reasoning_tree"`
		ExplainabilityScore *float64                `json:"explainability_score"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, &domain.RequestError{Detail: "malformed explanation body", Err: err}
	}
	switch {
	case raw.RetrievedDocs == nil:
		return nil, &domain.RequestError{Detail: `missing field "retrieved_docs"`}
	case raw.ReasoningTree == nil:
		return nil, &domain.RequestError{Detail: `missing field "reasoning_tree"`}
	case raw.ExplainabilityScore == nil:
		return nil, &domain.RequestError{Detail: `missing field "explainability_score"`}
	}

	return &domain.ExplanationSnapshot{
		RetrievedDocs:       *raw.RetrievedDocs,
		ReasoningTree:       *raw.ReasoningTree,
		ExplainabilityScore: *raw.ExplainabilityScore,
	}, nil
}

// StreamResult wraps a reasoning step or error from streaming.
type StreamResult struct {
	Step domain.ReasoningStep
	Err  error
}

// StreamReasoning starts the streaming reasoning request and returns a
// channel of parsed steps in wire arrival order. The channel closes when
// the body ends cleanly, after a StreamTransportError if the connection
// drops, or promptly after ctx is cancelled (cancellation is not an
// error). The response body is released on every exit path.
func (c *Client) StreamReasoning(ctx context.Context, message string) (<-chan StreamResult, error) {
	body, err := json.Marshal(chatRequest{Message: message, Context: chatContext{ExplanationMode: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.StreamTransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &domain.RequestError{StatusCode: resp.StatusCode, Detail: truncate(string(respBody), 512)}
	}

	out := make(chan StreamResult)
	go c.streamReader(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) streamReader(ctx context.Context, body io.ReadCloser, out chan<- StreamResult) {
	defer close(out)
	defer body.Close()

	dec := &stream.LineDecoder{}
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range dec.Decode(buf[:n]) {
				if !c.emitLine(ctx, line, out) {
					return
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				if line, ok := dec.Flush(); ok {
					c.emitLine(ctx, line, out)
				}
				return
			}
			if ctx.Err() != nil {
				// Cancelled by the caller, clean shutdown.
				return
			}
			select {
			case out <- StreamResult{Err: &domain.StreamTransportError{Err: err}}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// emitLine parses one line and forwards a step if present. Returns false
// once the context is cancelled.
func (c *Client) emitLine(ctx context.Context, line string, out chan<- StreamResult) bool {
	step, outcome, perr := stream.ParseLine(line)
	switch outcome {
	case stream.OutcomeStep:
		select {
		case out <- StreamResult{Step: step}:
		case <-ctx.Done():
			return false
		}
	case stream.OutcomeMalformed:
		c.logger.Debug("dropping malformed stream event", slog.String("error", perr.Error()))
	}
	// OutcomeNotEvent and OutcomeIgnored are skipped silently.
	return ctx.Err() == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
