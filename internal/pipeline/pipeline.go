// Package pipeline orchestrates one aggregation run: snapshot the
// registry, fetch concurrently, normalize, merge, render, then apply all
// registry mutations at a single-writer barrier.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"planet/internal/aggregate"
	"planet/internal/config"
	"planet/internal/fetcher"
	"planet/internal/model"
	"planet/internal/normalize"
	"planet/internal/prune"
	"planet/internal/render"
	"planet/internal/storage"
)

// ErrNoActiveSources means the registry holds nothing to fetch; without
// sources no meaningful aggregation can proceed.
var ErrNoActiveSources = errors.New("no active feed sources")

// ErrAllSourcesFailed means every source failed to fetch or parse. The
// site is deliberately not rewritten in that case, so a total outage
// never publishes an empty timeline over a good one.
var ErrAllSourcesFailed = errors.New("all feed sources failed")

// Stats summarizes one run.
type Stats struct {
	SourcesTotal  int
	SourcesFailed int
	Entries       int
	PagesWritten  int
	Flagged       []string
}

// Pipeline wires the aggregation stages together.
type Pipeline struct {
	store    storage.Storage
	fetcher  *fetcher.Fetcher
	norm     *normalize.Normalizer
	renderer *render.Renderer
	cfg      *config.Config
	log      *slog.Logger
}

// New creates a Pipeline from its stages.
func New(store storage.Storage, f *fetcher.Fetcher, n *normalize.Normalizer, r *render.Renderer, cfg *config.Config, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		fetcher:  f,
		norm:     n,
		renderer: r,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes one full aggregation run.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now().UTC()

	registry, err := p.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	var active []model.FeedSource
	for _, s := range registry {
		if s.Active {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActiveSources
	}

	// The run budget caps the concurrent phase; fetches still in flight
	// when it expires are abandoned with timeout semantics, and whatever
	// completed still contributes.
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	results := p.fetcher.FetchAll(fetchCtx, active)
	cancel()

	stats := &Stats{SourcesTotal: len(active)}
	bySource := make([][]model.Entry, len(active))
	producedAt := make(map[string]time.Time)
	contributed := 0

	for i, res := range results {
		if res.Status != model.StatusOK {
			stats.SourcesFailed++
			continue
		}
		entries, err := p.norm.Normalize(res)
		if err != nil {
			res.Status = model.StatusParseError
			p.log.Warn("parse failed",
				"url", res.Source.URL, "status", string(res.Status), "error", err)
			stats.SourcesFailed++
			continue
		}
		contributed++
		bySource[i] = entries
		if len(entries) > 0 {
			producedAt[res.Source.URL] = res.FetchedAt
		}
	}

	if contributed == 0 {
		return stats, ErrAllSourcesFailed
	}

	timeline := aggregate.Cap(aggregate.Merge(bySource), p.cfg.MaxEntries)
	stats.Entries = len(timeline)

	// Evaluate pruning against the registry as it will look after this
	// run's activity is applied.
	now := time.Now().UTC()
	snapshot := make([]model.FeedSource, len(registry))
	copy(snapshot, registry)
	for i := range snapshot {
		if at, ok := producedAt[snapshot[i].URL]; ok {
			t := at
			snapshot[i].LastActivityAt = &t
		}
	}
	stats.Flagged = prune.Evaluate(snapshot, now, p.cfg.ActivityThreshold())

	pages, err := p.renderer.Render(timeline, active, now)
	if err != nil {
		return stats, err
	}
	stats.PagesWritten = pages
	if err := p.renderer.WritePruneReport(stats.Flagged); err != nil {
		return stats, err
	}

	// Single-writer barrier: the registry is only mutated here, after
	// the concurrent phase is fully complete.
	for _, src := range active {
		at, ok := producedAt[src.URL]
		if !ok {
			continue
		}
		if err := p.store.TouchActivity(ctx, src.URL, at); err != nil {
			p.log.Error("touch activity", "url", src.URL, "error", err)
		}
	}
	for _, url := range stats.Flagged {
		p.log.Info("deactivating inactive feed", "url", url)
		if err := p.store.SetActive(ctx, url, false); err != nil {
			p.log.Error("deactivate feed", "url", url, "error", err)
		}
	}

	run := &model.Run{
		StartedAt:     start,
		FinishedAt:    time.Now().UTC(),
		SourcesTotal:  stats.SourcesTotal,
		SourcesFailed: stats.SourcesFailed,
		EntryCount:    stats.Entries,
	}
	if err := p.store.RecordRun(ctx, run); err != nil {
		p.log.Error("record run", "error", err)
	}

	p.log.Info("run complete",
		"sources", stats.SourcesTotal,
		"failed", stats.SourcesFailed,
		"entries", stats.Entries,
		"pages", stats.PagesWritten,
		"flagged", len(stats.Flagged),
		"took", time.Since(start))
	return stats, nil
}

// Watch runs immediately and then on every tick until ctx is cancelled.
// Individual run failures are logged and do not stop the loop.
func (p *Pipeline) Watch(ctx context.Context, interval time.Duration) {
	p.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Pipeline) runOnce(ctx context.Context) {
	if _, err := p.Run(ctx); err != nil {
		p.log.Error("run failed", "error", err)
	}
}
