// Package prune flags feed sources that have produced no entries within
// the configured inactivity window.
package prune

import (
	"time"

	"planet/internal/model"
)

// Evaluate returns the URLs of active sources with no entry-producing
// fetch within threshold. Sources that never produced an entry count
// from their registration time. Already-inactive sources are skipped;
// deactivation is one-way here, reactivation is a configuration edit.
func Evaluate(sources []model.FeedSource, now time.Time, threshold time.Duration) []string {
	cutoff := now.Add(-threshold)

	var flagged []string
	for _, s := range sources {
		if !s.Active {
			continue
		}
		last := s.LastActivityAt
		if last == nil {
			if !s.CreatedAt.IsZero() && s.CreatedAt.Before(cutoff) {
				flagged = append(flagged, s.URL)
			}
			continue
		}
		if last.Before(cutoff) {
			flagged = append(flagged, s.URL)
		}
	}
	return flagged
}
