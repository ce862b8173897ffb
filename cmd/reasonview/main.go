package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/selffix/reasonview/internal/aggregator"
	"github.com/selffix/reasonview/internal/api/engine"
	"github.com/selffix/reasonview/internal/config"
	"github.com/selffix/reasonview/internal/domain"
	"github.com/selffix/reasonview/internal/feedback"
	"github.com/selffix/reasonview/internal/history"
	"github.com/selffix/reasonview/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config.yaml (optional)")
	polarityFlag := flag.String("feedback", "", `record feedback after the run ("positive" or "negative")`)
	listSessions := flag.Bool("history", false, "list recorded sessions and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("reasonview", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := history.New(cfg.History.Path)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *listSessions {
		if err := printHistory(ctx, store); err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		return
	}

	query := flag.Arg(0)
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: reasonview [flags] <query>")
		os.Exit(2)
	}

	client := engine.NewClient(
		engine.WithBaseURL(cfg.Engine.BaseURL),
		engine.WithLogger(logger),
	)
	agg := aggregator.New(client, aggregator.WithLogger(logger))

	agg.Start(ctx, query)

	updates := agg.Subscribe()
	var printed int
	for {
		select {
		case <-ctx.Done():
			agg.Stop()
		case <-updates:
		case <-agg.Done():
		}

		view := agg.Snapshot()
		printed = printNewSteps(view, printed)
		if !view.Loading {
			renderFinal(view)
			finish(ctx, store, logger, view, *polarityFlag)
			return
		}
	}
}

// printNewSteps echoes live steps as they arrive, returning the new count.
func printNewSteps(view domain.AggregateView, printed int) int {
	for _, step := range view.LiveSteps[printed:] {
		fmt.Printf("step  %-20s ts=%.2f\n", step.Step, step.Timestamp)
	}
	return len(view.LiveSteps)
}

func renderFinal(view domain.AggregateView) {
	fmt.Printf("\nquery: %s\n", view.Query)

	if view.ExplainErr != nil {
		fmt.Printf("explanation: unavailable (%v)\n", view.ExplainErr)
	} else if view.Explanation != nil {
		fmt.Printf("explainability score: %.2f\n", view.Explanation.ExplainabilityScore)
		fmt.Printf("retrieved documents (%d):\n", len(view.Explanation.RetrievedDocs))
		for _, doc := range view.Explanation.RetrievedDocs {
			fmt.Printf("  [%.2f] %s  %s\n", doc.RelevanceScore, doc.ID, doc.Content)
		}
		fmt.Printf("static reasoning steps: %d\n", len(view.Explanation.ReasoningTree))
	}

	fmt.Printf("live reasoning steps: %d\n", len(view.LiveSteps))
	if view.StreamErr != nil {
		fmt.Printf("stream: interrupted (%v)\n", view.StreamErr)
	}
}

func finish(ctx context.Context, store *history.Store, logger *slog.Logger, view domain.AggregateView, polarity string) {
	if id, err := store.SaveSession(ctx, view); err != nil {
		logger.Error("failed to record session", slog.String("error", err.Error()))
	} else {
		logger.Info("session recorded", slog.String("session_id", id))
	}

	if polarity != "" {
		sink := func(_ context.Context, fc domain.FeedbackContext) error {
			return json.NewEncoder(os.Stdout).Encode(fc)
		}
		if _, err := feedback.Deliver(ctx, sink, domain.Polarity(polarity), view); err != nil {
			logger.Error("failed to deliver feedback", slog.String("error", err.Error()))
		}
	}
}

func printHistory(ctx context.Context, store *history.Store) error {
	sessions, err := store.ListSessions(ctx, 20)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		score := "-"
		if s.ExplainabilityScore != nil {
			score = fmt.Sprintf("%.2f", *s.ExplainabilityScore)
		}
		fmt.Printf("%s  %s  score=%s docs=%d steps=%d/%d\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.Query, score,
			s.DocCount, s.StaticStepCount, s.LiveStepCount)
	}
	return nil
}
