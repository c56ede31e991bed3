// Command planet builds a static planet site from the configured feeds.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"planet/internal/config"
	"planet/internal/fetcher"
	"planet/internal/model"
	"planet/internal/normalize"
	"planet/internal/pipeline"
	"planet/internal/prune"
	"planet/internal/render"
	"planet/internal/storage"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "planet",
		Short:         "Planet-style feed aggregator",
		Long:          "planet fetches the configured RSS/Atom/JSON feeds, merges their entries\ninto one chronological timeline, and renders it as a static HTML site.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "planet.yaml", "path to configuration file")
	rootCmd.AddCommand(newRunCmd(), newWatchCmd(), newSourcesCmd(), newPruneCmd(), newActivateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles what every subcommand needs: config, logger, and an open
// registry with the configured feed list synced in.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.SQLite
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}

	sources := make([]model.FeedSource, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		sources = append(sources, model.FeedSource{URL: f.URL, Label: f.Label})
	}
	if err := store.UpsertSources(ctx, sources); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("sync feed sources: %w", err)
	}

	return &app{cfg: cfg, log: log, store: store}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	r, err := render.New(render.Options{
		PlanetName:   a.cfg.Name,
		OutputDir:    a.cfg.OutputDir,
		DateFormat:   a.cfg.DateFormat,
		ItemsPerPage: a.cfg.ItemsPerPage,
		MaxPages:     a.cfg.MaxPages,
	}, a.log)
	if err != nil {
		return nil, err
	}
	f := fetcher.New(http.DefaultClient, a.cfg.FetchTimeout, a.cfg.MaxConcurrentFetches, a.log)
	return pipeline.New(a.store, f, normalize.New(a.log), r, a.cfg, a.log), nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch all feeds once and render the site",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			stats, err := p.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("rendered %d pages from %d entries (%d/%d sources failed)\n",
				stats.PagesWritten, stats.Entries, stats.SourcesFailed, stats.SourcesTotal)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Republish the site on an interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			a.log.Info("watching feeds", "interval", interval)
			p.Watch(ctx, interval)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between runs")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Show the feed registry and recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.store.ListSources(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tLABEL\tACTIVE\tLAST ACTIVITY")
			for _, s := range sources {
				last := "never"
				if s.LastActivityAt != nil {
					last = s.LastActivityAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", s.URL, s.Label, s.Active, last)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			runs, err := a.store.LastRuns(ctx, 5)
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				fmt.Println("\nRecent runs:")
				for _, r := range runs {
					fmt.Printf("  %s  %d entries, %d/%d sources failed\n",
						r.StartedAt.Format(time.RFC3339), r.EntryCount, r.SourcesFailed, r.SourcesTotal)
				}
			}
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Deactivate feeds with no recent entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.store.ListSources(ctx)
			if err != nil {
				return err
			}
			flagged := prune.Evaluate(sources, time.Now().UTC(), a.cfg.ActivityThreshold())
			if len(flagged) == 0 {
				fmt.Println("no inactive feeds")
				return nil
			}
			for _, url := range flagged {
				if dryRun {
					fmt.Println("would deactivate:", url)
					continue
				}
				if err := a.store.SetActive(ctx, url, false); err != nil {
					return err
				}
				fmt.Println("deactivated:", url)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report inactive feeds without deactivating them")
	return cmd
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <url>",
		Short: "Reactivate a feed that the pruner deactivated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.SetActive(ctx, args[0], true); err != nil {
				return err
			}
			fmt.Println("activated:", args[0])
			return nil
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
