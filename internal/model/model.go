// Package model defines the domain types used across the application.
package model

import "time"

// FeedSource represents one configured feed in the registry.
type FeedSource struct {
	ID             int64
	URL            string
	Label          string
	Active         bool
	LastActivityAt *time.Time
	CreatedAt      time.Time
}

// FetchStatus classifies the outcome of fetching one feed source.
type FetchStatus string

// Fetch outcomes.
const (
	StatusOK           FetchStatus = "ok"
	StatusHTTPError    FetchStatus = "http_error"
	StatusTimeout      FetchStatus = "timeout"
	StatusNetworkError FetchStatus = "network_error"
	StatusParseError   FetchStatus = "parse_error"
)

// Entry is one normalized article from a feed.
//
// Undated marks entries whose feed carried no usable publication date;
// PublishedAt then holds the fetch instant so sorting stays total.
type Entry struct {
	SourceURL   string
	SourceLabel string
	Title       string
	Link        string
	PublishedAt time.Time
	Summary     string
	Author      string
	Undated     bool
}

// Timeline is the merged entry sequence, newest first, with
// (SourceURL, Link) unique across the whole slice.
type Timeline []Entry

// Run records the outcome of one aggregation run for auditing.
type Run struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time
	SourcesTotal  int
	SourcesFailed int
	EntryCount    int
}
