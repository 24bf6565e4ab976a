package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/kafka"
)

func newBuildCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "build <dir>",
		Short: "Build the inverted index from a directory and save it to disk",
		Args:  exactArgs(1, "a directory path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.build(ctx, args[0])
		},
	}
}

func (a *app) build(ctx context.Context, dir string) error {
	fmt.Fprintf(a.stdout, "Building index from directory: %s\n", dir)
	snap, stats, err := indexer.NewBuilder(nil).BuildIndex(ctx, dir)
	if err != nil {
		return err
	}
	store := segment.NewStore(a.cfg.Index)
	if err := store.Save(ctx, snap); err != nil {
		return err
	}
	a.publishBuild(ctx, analytics.BuildEvent{
		Type:       analytics.EventBuild,
		Dir:        dir,
		Documents:  stats.Documents,
		Skipped:    stats.Skipped,
		Terms:      stats.Terms,
		Tokens:     stats.Tokens,
		DurationMs: stats.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	fmt.Fprintln(a.stdout, "Build completed successfully!")
	fmt.Fprintf(a.stdout, "Index and manifest have been saved to %s and %s\n", store.IndexPath(), store.ManifestPath())
	return nil
}

// publishBuild sends the build event when Kafka is enabled. Failures are
// logged and never fail the build.
func (a *app) publishBuild(ctx context.Context, event analytics.BuildEvent) {
	if !a.cfg.Kafka.Enabled {
		return
	}
	producer := kafka.NewProducer(a.cfg.Kafka)
	defer producer.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := producer.Publish(ctx, kafka.Event{Key: "build", Value: event}); err != nil {
		slog.Warn("build event not published", "error", err)
	}
}
