// Package domain defines the data model shared by the explanation client,
// the stream parser, and the aggregator.
package domain

import "encoding/json"

// DocMetadata carries producer-supplied metadata for a retrieved document.
type DocMetadata struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// RetrievedDoc is one supporting document returned by the explanation
// endpoint. Immutable once received; order within a response is the
// producer's relevance ranking.
type RetrievedDoc struct {
	ID             string      `json:"id"`
	Content        string      `json:"content"`
	RelevanceScore float64     `json:"relevance_score"`
	Metadata       DocMetadata `json:"metadata"`
}

// ReasoningStep is one discrete unit of the upstream derivation process.
// Content is opaque to us: we never inspect it beyond carrying it through.
// Timestamps are producer-supplied and not validated for ordering.
type ReasoningStep struct {
	Step       string          `json:"step"`
	Content    json.RawMessage `json:"content,omitempty"`
	Timestamp  float64         `json:"timestamp"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// ExplanationSnapshot is the static half of the aggregate: the complete
// document set, reasoning tree, and score delivered atomically by the
// explanation endpoint. Produced once per query and replaced wholesale
// when a new query starts.
type ExplanationSnapshot struct {
	RetrievedDocs       []RetrievedDoc  `json:"retrieved_docs"`
	ReasoningTree       []ReasoningStep `json:"reasoning_tree"`
	ExplainabilityScore float64         `json:"explainability_score"`
}
