// Package feedback builds immutable feedback records from aggregate
// snapshots. Delivery to a collector is owned by the caller.
package feedback

import (
	"context"
	"time"

	"github.com/selffix/reasonview/internal/domain"
)

// Capture builds a FeedbackContext from the current aggregate view and a
// polarity signal. It never mutates the view and performs no I/O; two
// captures of an unchanged view differ only in CapturedAt.
func Capture(polarity domain.Polarity, view domain.AggregateView) domain.FeedbackContext {
	fc := domain.FeedbackContext{
		Query:              view.Query,
		ReasoningStepCount: len(view.LiveSteps),
		CapturedAt:         time.Now().UTC(),
		Polarity:           polarity,
	}
	if view.Explanation != nil {
		score := view.Explanation.ExplainabilityScore
		fc.ExplainabilityScore = &score
		fc.RetrievedDocCount = len(view.Explanation.RetrievedDocs)
	}
	return fc
}

// Sink delivers a captured feedback record to an external collector.
type Sink func(ctx context.Context, fc domain.FeedbackContext) error

// Deliver captures a record from the view and hands it to sink. The record
// is returned even when delivery fails, so callers can retry or log it.
func Deliver(ctx context.Context, sink Sink, polarity domain.Polarity, view domain.AggregateView) (domain.FeedbackContext, error) {
	fc := Capture(polarity, view)
	if sink == nil {
		return fc, nil
	}
	return fc, sink(ctx, fc)
}
