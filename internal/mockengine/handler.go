// Package mockengine is a development stand-in for the upstream
// self-fixing AI backend. It serves the explanation and streaming
// reasoning endpoints with scripted Tree-of-Thought data so the client can
// be exercised without the real engine.
package mockengine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/selffix/reasonview/internal/domain"
	"github.com/selffix/reasonview/internal/server"
)

// Script is the canned data the engine serves for every query.
type Script struct {
	Docs                []domain.RetrievedDoc
	StaticTree          []domain.ReasoningStep
	ExplainabilityScore float64
	LiveSteps           []domain.ReasoningStep
	// StepDelay paces the stream so consumers see incremental delivery.
	StepDelay time.Duration
}

// DefaultScript mirrors the shape of the real engine's demo corpus: a few
// knowledge-base documents and the planner's node sequence.
func DefaultScript() Script {
	docs := make([]domain.RetrievedDoc, 3)
	for i := range docs {
		score := 0.9 - float64(i)*0.1
		docs[i] = domain.RetrievedDoc{
			ID:             fmt.Sprintf("doc_%d", i),
			Content:        fmt.Sprintf("Sample document %d from the knowledge base", i),
			RelevanceScore: score,
			Metadata:       domain.DocMetadata{Source: "knowledge_base", Score: score},
		}
	}

	labels := []string{"branch_generation", "branch_critique", "branch_ranking", "patch_execution", "result_validation"}
	steps := make([]domain.ReasoningStep, len(labels))
	for i, label := range labels {
		steps[i] = domain.ReasoningStep{
			Step:      label,
			Content:   json.RawMessage(fmt.Sprintf(`{"node":%q}`, label)),
			Timestamp: float64(i + 1),
		}
	}

	return Script{
		Docs:                docs,
		StaticTree:          steps[:1],
		ExplainabilityScore: 0.82,
		LiveSteps:           steps,
		StepDelay:           50 * time.Millisecond,
	}
}

// Handler serves the mock engine endpoints.
type Handler struct {
	script Script
	logger *slog.Logger
}

// NewHandler creates a handler serving the given script.
func NewHandler(script Script, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{script: script, logger: logger}
}

// Router assembles the chi router with the standard middleware chain.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(server.RequestIDMiddleware)
	r.Use(server.LoggingMiddleware(h.logger))
	r.Use(server.TimeoutMiddleware(5 * time.Minute))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "mock-engine")
	})

	r.Post("/explain", h.HandleExplain)
	r.Post("/chat-tot", h.HandleChatToT)
	r.Get("/health", h.HandleHealth)

	return r
}

// HandleExplain serves the one-shot explanation body.
func (h *Handler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query            string `json:"query"`
		IncludeReasoning bool   `json:"include_reasoning"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp := domain.ExplanationSnapshot{
		RetrievedDocs:       h.script.Docs,
		ReasoningTree:       h.script.StaticTree,
		ExplainabilityScore: h.script.ExplainabilityScore,
	}
	if !req.IncludeReasoning {
		resp.ReasoningTree = nil
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode explanation", slog.String("error", err.Error()))
	}
}

// HandleChatToT streams the scripted reasoning steps as newline-delimited
// data events, one per step, flushing after each.
func (h *Handler) HandleChatToT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)

	for _, step := range h.script.LiveSteps {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(h.script.StepDelay):
		}

		payload, err := json.Marshal(map[string]any{
			"type":      "reasoning_step",
			"content":   step,
			"timestamp": step.Timestamp,
		})
		if err != nil {
			h.logger.Error("failed to marshal step", slog.String("error", err.Error()))
			return
		}

		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// HandleHealth reports component status like the real engine does.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"components": map[string]bool{
			"retriever": true,
			"planner":   true,
		},
	})
}
