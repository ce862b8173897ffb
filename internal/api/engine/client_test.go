package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/selffix/reasonview/internal/domain"
	"github.com/selffix/reasonview/internal/testutil"
)

func explainBody(docs, steps int, score float64) string {
	snap := domain.ExplanationSnapshot{
		RetrievedDocs:       make([]domain.RetrievedDoc, docs),
		ReasoningTree:       make([]domain.ReasoningStep, steps),
		ExplainabilityScore: score,
	}
	for i := range snap.RetrievedDocs {
		snap.RetrievedDocs[i] = domain.RetrievedDoc{
			ID:             fmt.Sprintf("doc_%d", i),
			Content:        "content",
			RelevanceScore: 0.9,
			Metadata:       domain.DocMetadata{Source: "knowledge_base", Score: 0.9},
		}
	}
	for i := range snap.ReasoningTree {
		snap.ReasoningTree[i] = domain.ReasoningStep{Step: "branch_generation", Timestamp: float64(i)}
	}
	b, _ := json.Marshal(snap)
	return string(b)
}

func TestClient_Explain(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/explain" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Query            string `json:"query"`
			IncludeReasoning bool   `json:"include_reasoning"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Query != "fix the bug" || !req.IncludeReasoning {
			t.Errorf("unexpected request body: %+v", req)
		}
		fmt.Fprint(w, explainBody(2, 1, 0.82))
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	snap, err := c.Explain(context.Background(), "fix the bug")
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if len(snap.RetrievedDocs) != 2 {
		t.Errorf("RetrievedDocs = %d, want 2", len(snap.RetrievedDocs))
	}
	if len(snap.ReasoningTree) != 1 {
		t.Errorf("ReasoningTree = %d, want 1", len(snap.ReasoningTree))
	}
	if snap.ExplainabilityScore != 0.82 {
		t.Errorf("ExplainabilityScore = %v, want 0.82", snap.ExplainabilityScore)
	}
}

func TestClient_Explain_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "explanation failed", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	_, err := c.Explain(context.Background(), "q")

	var reqErr *domain.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", reqErr.StatusCode)
	}
}

func TestClient_Explain_MissingField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No explainability_score.
		fmt.Fprint(w, `{"retrieved_docs":[],"reasoning_tree":[]}`)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	_, err := c.Explain(context.Background(), "q")

	var reqErr *domain.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
}

func TestClient_Explain_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	if _, err := c.Explain(context.Background(), "q"); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func writeStepEvent(w http.ResponseWriter, label string, ts float64) {
	fmt.Fprintf(w, "data: {\"type\":\"reasoning_step\",\"content\":{\"step\":%q},\"timestamp\":%g}\n\n", label, ts)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func collect(t *testing.T, results <-chan StreamResult) ([]domain.ReasoningStep, []error) {
	t.Helper()
	var steps []domain.ReasoningStep
	var errs []error
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return steps, errs
			}
			if res.Err != nil {
				errs = append(errs, res.Err)
			} else {
				steps = append(steps, res.Step)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestClient_StreamReasoning(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
			Context struct {
				ExplanationMode bool `json:"explanation_mode"`
			} `json:"context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Message != "fix the bug" || !req.Context.ExplanationMode {
			t.Errorf("unexpected request body: %+v", req)
		}

		writeStepEvent(w, "branch_generation", 1)
		fmt.Fprint(w, "data: {\"type\":\"error\",\"content\":\"transient\"}\n\n")
		fmt.Fprint(w, "data: {broken\n\n")
		writeStepEvent(w, "branch_critique", 2)
		writeStepEvent(w, "branch_ranking", 3)
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	results, err := c.StreamReasoning(context.Background(), "fix the bug")
	if err != nil {
		t.Fatalf("StreamReasoning() error = %v", err)
	}

	steps, errs := collect(t, results)
	if len(errs) != 0 {
		t.Fatalf("unexpected stream errors: %v", errs)
	}
	want := []string{"branch_generation", "branch_critique", "branch_ranking"}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(steps), len(want))
	}
	for i, label := range want {
		if steps[i].Step != label {
			t.Errorf("step %d = %q, want %q (arrival order must be preserved)", i, steps[i].Step, label)
		}
	}
}

func TestClient_StreamReasoning_EventSplitAcrossChunks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// Force a chunk boundary in the middle of the JSON payload.
		fmt.Fprint(w, "data: {\"type\":\"reasoning_step\",\"content\"")
		flusher.Flush()
		fmt.Fprint(w, ":{\"step\":\"retrieval\"},\"timestamp\":1}\n\n")
		flusher.Flush()
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	results, err := c.StreamReasoning(context.Background(), "q")
	if err != nil {
		t.Fatalf("StreamReasoning() error = %v", err)
	}

	steps, errs := collect(t, results)
	if len(errs) != 0 {
		t.Fatalf("unexpected stream errors: %v", errs)
	}
	if len(steps) != 1 || steps[0].Step != "retrieval" {
		t.Fatalf("got %+v, want exactly one retrieval step", steps)
	}
}

func TestClient_StreamReasoning_TransportDrop(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than we send, then sever the connection so
		// the client sees an unclean end mid-stream.
		conn, bufrw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		defer conn.Close()
		bufrw.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 4096\r\n\r\n")
		bufrw.WriteString("data: {\"type\":\"reasoning_step\",\"content\":{\"step\":\"branch_generation\"},\"timestamp\":1}\n\n")
		bufrw.Flush()
	}))
	defer ts.Close()

	c := NewClient(WithBaseURL(ts.URL))
	results, err := c.StreamReasoning(context.Background(), "q")
	if err != nil {
		t.Fatalf("StreamReasoning() error = %v", err)
	}

	steps, errs := collect(t, results)
	if len(steps) != 1 {
		t.Errorf("got %d steps, want the 1 delivered before the drop", len(steps))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var transportErr *domain.StreamTransportError
	if !errors.As(errs[0], &transportErr) {
		t.Errorf("error = %v, want StreamTransportError", errs[0])
	}
}

func TestClient_StreamReasoning_Cancel(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(release)
		writeStepEvent(w, "branch_generation", 1)
		// Keep the body open until the client goes away.
		for i := 0; ; i++ {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			writeStepEvent(w, fmt.Sprintf("late_%d", i), float64(i))
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(WithBaseURL(ts.URL))
	results, err := c.StreamReasoning(ctx, "q")
	if err != nil {
		t.Fatalf("StreamReasoning() error = %v", err)
	}

	// Take the first step, then cancel.
	select {
	case res := <-results:
		if res.Err != nil {
			t.Fatalf("first result error: %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first step")
	}
	cancel()

	// The channel must close promptly and cancellation is not an error.
	_, errs := collect(t, results)
	if len(errs) != 0 {
		t.Errorf("cancellation surfaced errors: %v", errs)
	}

	select {
	case <-release:
	case <-time.After(5 * time.Second):
		t.Fatal("server handler never observed the disconnect")
	}
}

func TestClient_Explain_VCR(t *testing.T) {
	// Replay-only: record against a live engine with VCR_MODE=record.
	if !testutil.CassetteExists("explain") {
		t.Skip("no cassette recorded")
	}

	rec, cleanup := testutil.NewVCRRecorder(t, "explain")
	defer cleanup()

	c := NewClient(
		WithBaseURL("http://localhost:8000"),
		WithHTTPClient(testutil.VCRHTTPClient(rec)),
	)
	snap, err := c.Explain(context.Background(), "Fix this SQL injection vulnerability")
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if len(snap.RetrievedDocs) == 0 {
		t.Error("expected at least one retrieved document")
	}
}
