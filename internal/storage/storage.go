// Package storage defines the feed registry persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"planet/internal/model"
)

// Storage is the interface for all registry persistence operations.
type Storage interface {
	// UpsertSources syncs the configured feed list into the registry.
	// New URLs are inserted active; existing ones keep their state and
	// only pick up label changes. URLs no longer configured are removed:
	// the configuration file is the one authority over the feed set.
	UpsertSources(ctx context.Context, feeds []model.FeedSource) error

	// ListSources returns the whole registry in insertion order.
	ListSources(ctx context.Context) ([]model.FeedSource, error)

	// ListActiveSources returns only active sources, in insertion order.
	ListActiveSources(ctx context.Context) ([]model.FeedSource, error)

	SetActive(ctx context.Context, url string, active bool) error
	TouchActivity(ctx context.Context, url string, at time.Time) error

	RecordRun(ctx context.Context, run *model.Run) error
	LastRuns(ctx context.Context, n int) ([]model.Run, error)

	Close() error
}
