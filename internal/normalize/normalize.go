// Package normalize converts raw feed documents (RSS, Atom, JSON feed)
// into the common Entry representation.
package normalize

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"planet/internal/fetcher"
	"planet/internal/model"
)

// Normalizer parses feed documents and sanitizes their fields.
type Normalizer struct {
	parser *gofeed.Parser
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
	log    *slog.Logger
}

// New creates a Normalizer. Titles are stripped to plain text; summaries
// keep the usual safe markup subset.
func New(log *slog.Logger) *Normalizer {
	return &Normalizer{
		parser: gofeed.NewParser(),
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
		log:    log,
	}
}

// Normalize parses one fetched document into entries. A document that
// cannot be parsed at all yields an error; a malformed entry inside an
// otherwise valid document is skipped and logged.
func (n *Normalizer) Normalize(res *fetcher.Result) ([]model.Entry, error) {
	feed, err := n.parser.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", res.Source.URL, err)
	}

	base := baseURL(feed, res.Source.URL)

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			n.log.Warn("skipping entry without link",
				"feed", res.Source.URL, "title", item.Title)
			continue
		}

		link, err := resolveLink(base, item.Link)
		if err != nil {
			n.log.Warn("skipping entry with unparseable link",
				"feed", res.Source.URL, "link", item.Link, "error", err)
			continue
		}

		e := model.Entry{
			SourceURL:   res.Source.URL,
			SourceLabel: res.Source.Label,
			Title:       strings.TrimSpace(n.strict.Sanitize(item.Title)),
			Link:        link,
			Summary:     strings.TrimSpace(n.ugc.Sanitize(summaryOf(item))),
			Author:      authorOf(feed, item),
		}

		switch {
		case item.PublishedParsed != nil:
			e.PublishedAt = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			e.PublishedAt = item.UpdatedParsed.UTC()
		default:
			e.PublishedAt = res.FetchedAt
			e.Undated = true
		}

		entries = append(entries, e)
	}
	return entries, nil
}

func summaryOf(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}

func authorOf(feed *gofeed.Feed, item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0].Name != "" {
		return item.Authors[0].Name
	}
	if len(feed.Authors) > 0 && feed.Authors[0].Name != "" {
		return feed.Authors[0].Name
	}
	return ""
}

// baseURL picks the base for resolving relative entry links: the feed's
// own site link when it is absolute, otherwise the feed document URL.
func baseURL(feed *gofeed.Feed, sourceURL string) *url.URL {
	if feed.Link != "" {
		if u, err := url.Parse(feed.Link); err == nil && u.IsAbs() {
			return u
		}
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	return u
}

func resolveLink(base *url.URL, link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() || base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
