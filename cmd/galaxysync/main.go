package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/volunteerhq/galaxysync/internal/config"
	"github.com/volunteerhq/galaxysync/internal/domain/aggregate"
	"github.com/volunteerhq/galaxysync/internal/domain/syncer"
	"github.com/volunteerhq/galaxysync/internal/galaxy"
	"github.com/volunteerhq/galaxysync/internal/sqlite"
	"github.com/volunteerhq/galaxysync/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "galaxysync",
		Short:         "Replicates a Galaxy Digital site into a local document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newAggregateCmd())
	cmd.AddCommand(newCheckpointsCmd())
	return cmd
}

// app wires the full service graph from configuration.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sqlite.DB
	docs   *sqlite.DocumentRepository
	cps    *sqlite.CheckpointRepository
	sync   *syncer.Service
	agg    *aggregate.Service
}

func newApp(needsUpstream bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	docs := sqlite.NewDocumentRepository(db)
	cps := sqlite.NewCheckpointRepository(db)

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		docs:   docs,
		cps:    cps,
		agg:    aggregate.NewService(docs, logger),
	}

	if needsUpstream {
		if err := cfg.RequireCredentials(); err != nil {
			db.Close()
			return nil, err
		}
		loc, err := cfg.Location()
		if err != nil {
			db.Close()
			return nil, err
		}
		client := galaxy.NewClient(
			cfg.Galaxy.BaseURL, cfg.Galaxy.APIKey, cfg.Galaxy.Email, cfg.Galaxy.Password,
			logger,
			galaxy.WithLocation(loc),
			galaxy.WithRetryPolicy(galaxy.RetryPolicy{
				MaxAttempts: cfg.Sync.RetryAttempts,
				BaseDelay:   cfg.Sync.RetryBaseDelay.Std(),
				MaxDelay:    cfg.Sync.RetryMaxDelay.Std(),
			}),
		)
		fetcher := galaxy.NewFetcher(client, logger)
		writer := syncer.NewWriter(docs, logger)
		a.sync = syncer.NewService(fetcher, writer, cps, logger, cfg.Sync.Concurrency)
	}
	return a, nil
}

func (a *app) close() {
	a.db.Close()
}

func newServeCmd() *cobra.Command {
	var schedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API, optionally with the sync scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if schedule {
				scheduler := syncer.NewScheduler(a.sync, a.cfg.Sync.Interval.Std(), a.logger)
				scheduler.OnCycleComplete(func(ctx context.Context, report *syncer.CycleReport) {
					if _, err := a.agg.GenerateAll(ctx); err != nil {
						a.logger.Error("aggregation after sync failed", "error", err)
					}
				})
				go func() {
					if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
						a.logger.Error("scheduler stopped", "error", err)
					}
				}()
			}

			server := transport.NewServer(a.sync, a.agg, a.cps, a.docs, a.logger, a.cfg.Server.APIKeys)
			addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
			return transport.ListenAndServe(ctx, addr, server.Handler(), a.logger)
		},
	}
	cmd.Flags().BoolVar(&schedule, "schedule", false, "run sync cycles on the configured interval")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var aggregateAfter bool
	cmd := &cobra.Command{
		Use:   "sync [resource...]",
		Short: "Run one sync cycle, for all resources or the named ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := a.sync.RunCycle(ctx, args...)
			if err != nil {
				return err
			}
			if aggregateAfter {
				if _, err := a.agg.GenerateAll(ctx); err != nil {
					return err
				}
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&aggregateAfter, "aggregate", false, "regenerate rollups after the sync")
	return cmd
}

func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "aggregate [report]",
		Short:     "Regenerate rollup collections from synced data",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: aggregate.Reports(),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if len(args) == 1 {
				result, err := a.agg.Generate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			}

			results, err := a.agg.GenerateAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
}

func newCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "Show the sync checkpoint for every resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			cps, err := a.cps.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, cps)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
