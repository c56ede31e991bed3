// Package aggregate merges per-source entries into one deduplicated,
// deterministically ordered timeline.
package aggregate

import (
	"sort"

	"planet/internal/model"
)

type dedupKey struct {
	sourceURL string
	link      string
}

// Merge combines entries from all sources into one timeline. bySource is
// indexed in registry order, which makes deduplication deterministic:
// when the same (source, link) pair appears twice, the more complete
// entry wins, and ties keep the first one encountered.
//
// The result is sorted by PublishedAt descending; equal timestamps are
// ordered by (SourceURL, Link) ascending so identical inputs always
// produce identical output.
func Merge(bySource [][]model.Entry) model.Timeline {
	seen := make(map[dedupKey]int)
	var out model.Timeline

	for _, entries := range bySource {
		for _, e := range entries {
			k := dedupKey{sourceURL: e.SourceURL, link: e.Link}
			if idx, ok := seen[k]; ok {
				if completeness(e) > completeness(out[idx]) {
					out[idx] = e
				}
				continue
			}
			seen[k] = len(out)
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		if out[i].SourceURL != out[j].SourceURL {
			return out[i].SourceURL < out[j].SourceURL
		}
		return out[i].Link < out[j].Link
	})

	return out
}

// Cap keeps the n newest entries. n <= 0 means no cap.
func Cap(t model.Timeline, n int) model.Timeline {
	if n <= 0 || len(t) <= n {
		return t
	}
	return t[:n]
}

func completeness(e model.Entry) int {
	score := 0
	if e.Summary != "" {
		score++
	}
	if e.Author != "" {
		score++
	}
	return score
}
