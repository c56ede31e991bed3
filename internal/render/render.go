// Package render writes the aggregated timeline as a paginated static
// HTML site plus a prune report for the registry maintainer.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"planet/internal/model"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// PruneReportFile lists the feed URLs flagged inactive by the last run.
const PruneReportFile = "prune_report.txt"

// Options configure a Renderer.
type Options struct {
	PlanetName   string
	OutputDir    string
	DateFormat   string
	ItemsPerPage int
	MaxPages     int
}

// Renderer produces the static site files.
type Renderer struct {
	opts Options
	tmpl *template.Template
	log  *slog.Logger
}

// New creates a Renderer with the embedded page template.
func New(opts Options, log *slog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Renderer{opts: opts, tmpl: tmpl, log: log}, nil
}

type entryView struct {
	Title       string
	Link        string
	Summary     template.HTML
	Author      string
	Date        string
	Undated     bool
	SourceLabel string
	SourceURL   string
}

type feedView struct {
	Label string
	URL   string
}

type authorView struct {
	Label string
	URL   string
	Count int
}

type pageLink struct {
	Number  int
	Href    string
	Current bool
}

type pageData struct {
	PlanetName   string
	Entries      []entryView
	Page         int
	TotalPages   int
	Pages        []pageLink
	PrevHref     string
	NextHref     string
	Feeds        []feedView
	TopAuthors   []authorView
	TotalEntries int
	UniqueFeeds  int
	GeneratedAt  string
}

// Render writes the paginated index pages and returns how many were
// written. An empty timeline still produces index1.html so the site is
// never left without an entry point.
func (r *Renderer) Render(timeline model.Timeline, feeds []model.FeedSource, generatedAt time.Time) (int, error) {
	if err := os.MkdirAll(r.opts.OutputDir, 0o750); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	perPage := r.opts.ItemsPerPage
	totalPages := (len(timeline) + perPage - 1) / perPage
	if totalPages > r.opts.MaxPages {
		totalPages = r.opts.MaxPages
	}
	if totalPages < 1 {
		totalPages = 1
	}

	feedViews := make([]feedView, 0, len(feeds))
	for _, f := range feeds {
		feedViews = append(feedViews, feedView{Label: f.Label, URL: f.URL})
	}

	authors := topAuthors(timeline)
	uniqueFeeds := countUniqueFeeds(timeline)

	for page := 1; page <= totalPages; page++ {
		start := (page - 1) * perPage
		end := min(start+perPage, len(timeline))
		var slice model.Timeline
		if start < len(timeline) {
			slice = timeline[start:end]
		}

		data := pageData{
			PlanetName:   r.opts.PlanetName,
			Entries:      r.entryViews(slice),
			Page:         page,
			TotalPages:   totalPages,
			Pages:        pageWindow(page, totalPages),
			Feeds:        feedViews,
			TopAuthors:   authors,
			TotalEntries: len(timeline),
			UniqueFeeds:  uniqueFeeds,
			GeneratedAt:  generatedAt.Format(r.opts.DateFormat),
		}
		if page > 1 {
			data.PrevHref = pageFile(page - 1)
		}
		if page < totalPages {
			data.NextHref = pageFile(page + 1)
		}

		if err := r.writePage(pageFile(page), data); err != nil {
			return 0, err
		}
	}

	r.log.Info("site rendered",
		"pages", totalPages, "entries", len(timeline), "dir", r.opts.OutputDir)
	return totalPages, nil
}

// WritePruneReport writes the list of flagged feed URLs next to the site
// so the configuration can be trimmed by hand or by tooling.
func (r *Renderer) WritePruneReport(urls []string) error {
	if err := os.MkdirAll(r.opts.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(r.opts.OutputDir, PruneReportFile)
	content := strings.Join(urls, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return fmt.Errorf("write prune report: %w", err)
	}
	return nil
}

func (r *Renderer) writePage(name string, data pageData) error {
	path := filepath.Join(r.opts.OutputDir, name)
	f, err := os.Create(path) //nolint:gosec // path is operator-configured
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := r.tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

func (r *Renderer) entryViews(entries model.Timeline) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = "Untitled"
		}
		v := entryView{
			Title: title,
			Link:  e.Link,
			// Summary was sanitized during normalization.
			Summary:     template.HTML(e.Summary), //nolint:gosec
			Author:      e.Author,
			Undated:     e.Undated,
			SourceLabel: e.SourceLabel,
			SourceURL:   e.SourceURL,
		}
		if !e.Undated {
			v.Date = e.PublishedAt.Format(r.opts.DateFormat)
		}
		views = append(views, v)
	}
	return views
}

func pageFile(page int) string {
	return fmt.Sprintf("index%d.html", page)
}

// pageWindow returns up to five page links centered on the current page.
func pageWindow(page, totalPages int) []pageLink {
	lo := max(1, page-2)
	hi := min(totalPages, page+2)
	links := make([]pageLink, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		links = append(links, pageLink{
			Number:  i,
			Href:    pageFile(i),
			Current: i == page,
		})
	}
	return links
}

func topAuthors(timeline model.Timeline) []authorView {
	counts := make(map[string]*authorView)
	for _, e := range timeline {
		v, ok := counts[e.SourceLabel]
		if !ok {
			v = &authorView{Label: e.SourceLabel, URL: e.SourceURL}
			counts[e.SourceLabel] = v
		}
		v.Count++
	}

	views := make([]authorView, 0, len(counts))
	for _, v := range counts {
		views = append(views, *v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Count != views[j].Count {
			return views[i].Count > views[j].Count
		}
		return views[i].Label < views[j].Label
	})
	if len(views) > 5 {
		views = views[:5]
	}
	return views
}

func countUniqueFeeds(timeline model.Timeline) int {
	seen := make(map[string]bool)
	for _, e := range timeline {
		seen[e.SourceURL] = true
	}
	return len(seen)
}
