package domain

import "time"

// Polarity is the direction of a feedback signal.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
)

// AggregateView is the externally observable state of one query lifecycle:
// the static explanation (if fetched), the live step log so far, and the
// settle/error status of each half. The static tree and the live log are
// two independent ordered sequences; they are never interleaved.
type AggregateView struct {
	Query       string
	Explanation *ExplanationSnapshot
	LiveSteps   []ReasoningStep

	// Loading is true until both the explanation request and the stream
	// have settled, in success or failure.
	Loading bool

	// ExplainErr and StreamErr are per-half: a failure on one side never
	// discards data already obtained by the other.
	ExplainErr error
	StreamErr  error

	// StreamDone marks the live half settled; no further steps can be
	// appended for this query.
	StreamDone bool
}

// FeedbackContext is an immutable record of the aggregate state at the
// moment a user gave feedback. Delivery to a collector is the caller's job.
type FeedbackContext struct {
	Query               string    `json:"query"`
	ExplainabilityScore *float64  `json:"explainability_score,omitempty"`
	ReasoningStepCount  int       `json:"reasoning_step_count"`
	RetrievedDocCount   int       `json:"retrieved_doc_count"`
	CapturedAt          time.Time `json:"captured_at"`
	Polarity            Polarity  `json:"polarity"`
}
