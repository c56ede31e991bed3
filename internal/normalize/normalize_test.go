package normalize

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"planet/internal/fetcher"
	"planet/internal/model"
)

func loadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return data
}

func newTestNormalizer() *Normalizer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func result(t *testing.T, fixture, url, label string, fetchedAt time.Time) *fetcher.Result {
	t.Helper()
	return &fetcher.Result{
		Source:    model.FeedSource{URL: url, Label: label, Active: true},
		Status:    model.StatusOK,
		Body:      loadFixture(t, fixture),
		FetchedAt: fetchedAt,
	}
}

func TestNormalizeRSS(t *testing.T) {
	fetchedAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer()

	entries, err := n.Normalize(result(t,
		"../../testdata/sample.xml", "https://blog.example.com/rss", "Example", fetchedAt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Five items in the fixture; the one without a link is dropped.
	want := []model.Entry{
		{
			SourceURL:   "https://blog.example.com/rss",
			SourceLabel: "Example",
			Title:       "First Post",
			Link:        "https://blog.example.com/posts/first",
			PublishedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			Summary:     "<p>Hello <b>world</b></p>",
			Author:      "Alice",
		},
		{
			SourceURL:   "https://blog.example.com/rss",
			SourceLabel: "Example",
			Title:       "Second Post",
			Link:        "https://blog.example.com/posts/second",
			PublishedAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
			Summary:     "BeforeAfter",
		},
		{
			SourceURL:   "https://blog.example.com/rss",
			SourceLabel: "Example",
			Title:       "Undated Post",
			Link:        "https://blog.example.com/posts/undated",
			PublishedAt: fetchedAt,
			Summary:     "No date on this one",
			Undated:     true,
		},
		{
			SourceURL:   "https://blog.example.com/rss",
			SourceLabel: "Example",
			Title:       "First Post",
			Link:        "https://blog.example.com/posts/first",
			PublishedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeAtom(t *testing.T) {
	fetchedAt := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer()

	entries, err := n.Normalize(result(t,
		"../../testdata/atom.xml", "https://atom.example.com/feed", "Atom Blog", fetchedAt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Entry one has only <updated>; that still counts as a usable date.
	if entries[0].Undated {
		t.Error("entry with updated date marked undated")
	}
	if want := time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC); !entries[0].PublishedAt.Equal(want) {
		t.Errorf("entry 0 published = %v, want %v", entries[0].PublishedAt, want)
	}
	if entries[0].Author != "Bob" {
		t.Errorf("entry 0 author = %q, want Bob", entries[0].Author)
	}

	// Entry two has no author of its own and inherits the feed author.
	if entries[1].Author != "Feed Author" {
		t.Errorf("entry 1 author = %q, want feed author", entries[1].Author)
	}
	if want := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC); !entries[1].PublishedAt.Equal(want) {
		t.Errorf("entry 1 published = %v, want %v", entries[1].PublishedAt, want)
	}
}

func TestNormalizeJSONFeed(t *testing.T) {
	fetchedAt := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer()

	entries, err := n.Normalize(result(t,
		"../../testdata/feed.json", "https://json.example.com/feed.json", "JSON Blog", fetchedAt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.Title != "Hello JSON" {
		t.Errorf("title = %q", e.Title)
	}
	if e.Link != "https://json.example.com/posts/hello" {
		t.Errorf("link = %q", e.Link)
	}
	if e.Summary != "<p>JSON feed entry</p>" {
		t.Errorf("summary = %q", e.Summary)
	}
	if e.Author != "Carol" {
		t.Errorf("author = %q", e.Author)
	}
	if want := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC); !e.PublishedAt.Equal(want) {
		t.Errorf("published = %v, want %v", e.PublishedAt, want)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(result(t,
		"../../testdata/malformed.xml", "https://bad.example.com/rss", "Bad", time.Now().UTC()))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveLink(t *testing.T) {
	tests := []struct {
		name string
		base string
		link string
		want string
	}{
		{
			name: "absolute link unchanged",
			base: "https://blog.example.com/",
			link: "https://other.example.com/post",
			want: "https://other.example.com/post",
		},
		{
			name: "relative link resolved",
			base: "https://blog.example.com/",
			link: "/posts/one",
			want: "https://blog.example.com/posts/one",
		},
		{
			name: "relative without leading slash",
			base: "https://blog.example.com/section/",
			link: "one",
			want: "https://blog.example.com/section/one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := url.Parse(tt.base)
			if err != nil {
				t.Fatalf("parse base: %v", err)
			}
			got, err := resolveLink(base, tt.link)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveLink = %q, want %q", got, tt.want)
			}
		})
	}
}
