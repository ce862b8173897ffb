// Package aggregator merges the static explanation and the live reasoning
// stream for one query into a single observable view.
package aggregator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/selffix/reasonview/internal/api/engine"
	"github.com/selffix/reasonview/internal/domain"
)

// Option configures the aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// Aggregator drives the explanation request and the reasoning stream for
// the current query concurrently and folds both into an AggregateView.
// All mutation of the view happens under a single mutex; every write is
// tagged with the generation it belongs to, so a late yield from a
// superseded query is a no-op.
type Aggregator struct {
	client *engine.Client
	logger *slog.Logger

	mu             sync.Mutex
	gen            int
	cancel         context.CancelFunc
	view           domain.AggregateView
	explainSettled bool
	streamSettled  bool
	done           chan struct{}
	doneClosed     bool
	subs           []chan struct{}
}

// New creates an aggregator over the given engine client.
func New(client *engine.Client, opts ...Option) *Aggregator {
	done := make(chan struct{})
	close(done)

	a := &Aggregator{
		client:     client,
		logger:     slog.Default(),
		done:       done,
		doneClosed: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins a new query lifecycle. Any in-flight lifecycle is
// superseded atomically: its stream is cancelled before Start returns and
// none of its remaining yields can reach the new view. The view is reset
// to an empty loading state, then the explanation request and the step
// stream run concurrently.
func (a *Aggregator) Start(ctx context.Context, query string) {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.gen++
	gen := a.gen

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.view = domain.AggregateView{Query: query, Loading: true}
	a.explainSettled = false
	a.streamSettled = false
	a.done = make(chan struct{})
	a.doneClosed = false
	a.mu.Unlock()

	a.broadcast()

	go a.fetchExplanation(runCtx, gen, query)
	go a.consumeStream(runCtx, gen, query)
}

// Stop cancels the current lifecycle. Accumulated state stays visible.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	// Bump the generation so in-flight yields are discarded.
	a.gen++
	a.view.Loading = false
	if !a.doneClosed {
		a.doneClosed = true
		close(a.done)
	}
	a.mu.Unlock()

	a.broadcast()
}

// Snapshot returns a copy of the current aggregate view. The copy owns its
// own slices, so callers can hold it across further appends.
func (a *Aggregator) Snapshot() domain.AggregateView {
	a.mu.Lock()
	defer a.mu.Unlock()

	view := a.view
	if a.view.LiveSteps != nil {
		view.LiveSteps = make([]domain.ReasoningStep, len(a.view.LiveSteps))
		copy(view.LiveSteps, a.view.LiveSteps)
	}
	if a.view.Explanation != nil {
		snap := *a.view.Explanation
		snap.RetrievedDocs = make([]domain.RetrievedDoc, len(a.view.Explanation.RetrievedDocs))
		copy(snap.RetrievedDocs, a.view.Explanation.RetrievedDocs)
		snap.ReasoningTree = make([]domain.ReasoningStep, len(a.view.Explanation.ReasoningTree))
		copy(snap.ReasoningTree, a.view.Explanation.ReasoningTree)
		view.Explanation = &snap
	}
	return view
}

// Subscribe returns a channel that receives a coalesced signal whenever
// the view changes. Consumers call Snapshot after each signal.
func (a *Aggregator) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	return ch
}

// Done returns a channel closed once both halves of the most recent Start
// have settled. Before any Start it is already closed.
func (a *Aggregator) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

func (a *Aggregator) fetchExplanation(ctx context.Context, gen int, query string) {
	snap, err := a.client.Explain(ctx, query)
	if err != nil && ctx.Err() != nil {
		// Superseded or stopped; the stale generation check below would
		// drop this anyway, but a cancelled fetch is not a failure.
		err = nil
		snap = nil
	}

	a.apply(gen, func(v *domain.AggregateView) {
		a.explainSettled = true
		if err != nil {
			v.ExplainErr = err
			a.logger.Warn("explanation request failed",
				slog.String("query", query),
				slog.String("error", err.Error()))
			return
		}
		v.Explanation = snap
	})
}

func (a *Aggregator) consumeStream(ctx context.Context, gen int, query string) {
	results, err := a.client.StreamReasoning(ctx, query)
	if err != nil {
		a.apply(gen, func(v *domain.AggregateView) {
			a.streamSettled = true
			v.StreamDone = true
			if ctx.Err() == nil {
				v.StreamErr = err
			}
		})
		return
	}

	for res := range results {
		if res.Err != nil {
			a.apply(gen, func(v *domain.AggregateView) {
				v.StreamErr = res.Err
			})
			continue
		}
		step := res.Step
		a.apply(gen, func(v *domain.AggregateView) {
			v.LiveSteps = append(v.LiveSteps, step)
		})
	}

	a.apply(gen, func(v *domain.AggregateView) {
		a.streamSettled = true
		v.StreamDone = true
	})
}

// apply runs a mutation against the view if and only if gen is still the
// live generation. Settling both halves closes the done channel.
func (a *Aggregator) apply(gen int, mutate func(*domain.AggregateView)) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	mutate(&a.view)
	a.view.Loading = !(a.explainSettled && a.streamSettled)

	var toClose chan struct{}
	if !a.view.Loading && !a.doneClosed {
		a.doneClosed = true
		toClose = a.done
	}
	a.mu.Unlock()

	if toClose != nil {
		close(toClose)
	}
	a.broadcast()
}

func (a *Aggregator) broadcast() {
	a.mu.Lock()
	subs := make([]chan struct{}, len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
