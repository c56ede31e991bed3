package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planet.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    *Config
		wantErr bool
	}{
		{
			name: "minimal config applies defaults",
			yaml: "feeds:\n  - url: https://blog.example.com/rss\n",
			want: &Config{
				Name:                  "Planet",
				OutputDir:             "./output",
				DatabasePath:          "./data/planet.db",
				LogLevel:              "info",
				DateFormat:            "January 2, 2006 3:04 PM MST",
				ItemsPerPage:          25,
				MaxPages:              10,
				MaxEntries:            0,
				ActivityThresholdDays: 30,
				FetchTimeout:          30 * time.Second,
				RunTimeout:            5 * time.Minute,
				MaxConcurrentFetches:  8,
				Feeds: []Feed{
					{URL: "https://blog.example.com/rss", Label: "https://blog.example.com/rss"},
				},
			},
		},
		{
			name: "all values set",
			yaml: `name: Example Planet
output_dir: /srv/planet
database_path: /var/lib/planet.db
log_level: debug
date_format: "2006-01-02"
items_per_page: 10
max_pages: 3
max_entries: 50
activity_threshold_days: 45
fetch_timeout: 10s
run_timeout: 2m
max_concurrent_fetches: 4
feeds:
  - url: https://a.example.com/rss
    label: A Blog
  - url: https://b.example.com/atom
`,
			want: &Config{
				Name:                  "Example Planet",
				OutputDir:             "/srv/planet",
				DatabasePath:          "/var/lib/planet.db",
				LogLevel:              "debug",
				DateFormat:            "2006-01-02",
				ItemsPerPage:          10,
				MaxPages:              3,
				MaxEntries:            50,
				ActivityThresholdDays: 45,
				FetchTimeout:          10 * time.Second,
				RunTimeout:            2 * time.Minute,
				MaxConcurrentFetches:  4,
				Feeds: []Feed{
					{URL: "https://a.example.com/rss", Label: "A Blog"},
					{URL: "https://b.example.com/atom", Label: "https://b.example.com/atom"},
				},
			},
		},
		{
			name:    "no feeds",
			yaml:    "name: Empty\n",
			wantErr: true,
		},
		{
			name:    "invalid feed url",
			yaml:    "feeds:\n  - url: not a url\n",
			wantErr: true,
		},
		{
			name:    "relative feed url",
			yaml:    "feeds:\n  - url: /just/a/path\n",
			wantErr: true,
		},
		{
			name: "duplicate feed url",
			yaml: `feeds:
  - url: https://a.example.com/rss
  - url: https://a.example.com/rss
`,
			wantErr: true,
		},
		{
			name:    "bad fetch timeout",
			yaml:    "fetch_timeout: soon\nfeeds:\n  - url: https://a.example.com/rss\n",
			wantErr: true,
		},
		{
			name:    "negative run timeout",
			yaml:    "run_timeout: -1m\nfeeds:\n  - url: https://a.example.com/rss\n",
			wantErr: true,
		},
		{
			name:    "zero items per page",
			yaml:    "items_per_page: 0\nfeeds:\n  - url: https://a.example.com/rss\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			yaml:    "{{{",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestActivityThreshold(t *testing.T) {
	cfg := &Config{ActivityThresholdDays: 30}
	want := 30 * 24 * time.Hour
	if got := cfg.ActivityThreshold(); got != want {
		t.Errorf("threshold = %v, want %v", got, want)
	}
}
