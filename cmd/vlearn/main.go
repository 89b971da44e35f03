// vlearn is the inspection CLI for a learning data directory: health and
// store counts, top patterns, knowledge entries, trend windows, and a
// replay mode that feeds recorded events through a local pipeline.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vlearn/internal/analytics"
	"vlearn/internal/config"
	"vlearn/internal/learning"
	"vlearn/internal/store"
	"vlearn/internal/types"
)

var (
	log         *zap.SugaredLogger
	storagePath string
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log = logger.Sugar()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vlearn",
		Short:         "Inspect and replay validation learning data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&storagePath, "storage", config.Load().StoragePath,
		"learning data directory")

	root.AddCommand(newHealthCmd(), newPatternsCmd(), newKnowledgeCmd(), newTrendsCmd(), newReplayCmd())
	return root
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show store counts and effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cfg.StoragePath = storagePath
			c := learning.NewCoordinator(cfg)
			defer c.Shutdown()
			return printJSON(c.HealthStatus())
		},
	}
}

func newPatternsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List top patterns by success rate and usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := store.NewPatternStore(filepath.Join(storagePath, "patterns.db"))
			if err != nil {
				return fmt.Errorf("opening pattern store: %w", err)
			}
			defer ps.Close()

			patterns, err := ps.ListPatterns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("listing patterns: %w", err)
			}
			log.Infof("%d patterns in %s", len(patterns), storagePath)
			return printJSON(patterns)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum patterns to list")
	return cmd
}

func newKnowledgeCmd() *cobra.Command {
	var subject string
	var limit int
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "List knowledge entries, optionally for one subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := store.NewKnowledgeStore(filepath.Join(storagePath, "knowledge.db"))
			if err != nil {
				return fmt.Errorf("opening knowledge store: %w", err)
			}
			defer ks.Close()

			var entries []types.KnowledgeEntry
			if subject != "" {
				entries, err = ks.EntriesForSubject(cmd.Context(), subject, limit)
			} else {
				entries, err = ks.ListEntries(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("listing knowledge: %w", err)
			}
			return printJSON(entries)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "restrict to one subject")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to list")
	return cmd
}

func newTrendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trends",
		Short: "Show per-source trend windows (24h, 7d, all time)",
		RunE: func(cmd *cobra.Command, args []string) error {
			es, err := store.NewEventStore(filepath.Join(storagePath, "analytics.db"))
			if err != nil {
				return fmt.Errorf("opening event store: %w", err)
			}
			svc := analytics.NewService(es, 0, false)
			defer svc.Close()

			report, err := svc.AnalyzeTrends(cmd.Context())
			if err != nil {
				return fmt.Errorf("aggregating trends: %w", err)
			}
			return printJSON(report)
		},
	}
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Feed recorded events through a local learning pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening events file: %w", err)
			}
			defer f.Close()

			cfg := config.Load()
			cfg.StoragePath = storagePath
			c := learning.NewCoordinator(cfg)
			defer c.Shutdown()

			var read, submitted int
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				read++
				var event types.ValidationEvent
				if err := json.Unmarshal(line, &event); err != nil {
					log.Warnf("line %d: skipping malformed event: %v", read, err)
					continue
				}
				c.LearnFromValidation(event)
				submitted++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading events file: %w", err)
			}

			waitForDrain(cmd.Context(), c)
			log.Infof("replayed %d/%d events", submitted, read)
			return printJSON(c.HealthStatus())
		},
	}
}

// waitForDrain waits until the coordinator has worked through its queue, or
// progress stalls.
func waitForDrain(ctx context.Context, c *learning.Coordinator) {
	var lastProcessed int64
	stalled := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
		status := c.HealthStatus()
		if status.QueueDepth == 0 && status.Counters.Processed == status.Counters.Submitted {
			return
		}
		if status.Counters.Processed == lastProcessed {
			if stalled++; stalled >= 50 {
				log.Warnf("drain stalled at %d processed", lastProcessed)
				return
			}
		} else {
			stalled = 0
			lastProcessed = status.Counters.Processed
		}
	}
}
