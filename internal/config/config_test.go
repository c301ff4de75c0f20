package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FirstRunCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "icsnotes.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen == "" || cfg.Vault == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icsnotes.yaml")

	cfg := DefaultConfig()
	cfg.Feeds = []FeedConfig{{
		ID:                  "work",
		Name:                "Work",
		URL:                 "https://cal.example.com/work.ics",
		Folder:              "Calendar/Work",
		Color:               "#3377ff",
		SyncOnStart:         true,
		SyncIntervalMinutes: 30,
		Enabled:             true,
	}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Feeds) != 1 {
		t.Fatalf("feeds = %+v", got.Feeds)
	}
	if got.Feeds[0] != cfg.Feeds[0] {
		t.Errorf("feed round trip mismatch:\n got %+v\nwant %+v", got.Feeds[0], cfg.Feeds[0])
	}
}

func TestNormalize_FillsMissingFeedFields(t *testing.T) {
	cfg := &Config{
		Feeds: []FeedConfig{
			{URL: "https://cal.example.com/a.ics", Name: "Alpha"},
			{URL: "https://cal.example.com/b.ics"},
		},
	}
	cfg.Normalize()

	a, b := cfg.Feeds[0], cfg.Feeds[1]
	if a.ID == "" || b.ID == "" {
		t.Error("missing IDs should be generated")
	}
	if a.ID == b.ID {
		t.Error("generated IDs must differ")
	}
	if a.Folder != "Alpha" {
		t.Errorf("folder should default to the name, got %q", a.Folder)
	}
	if b.Name != b.ID {
		t.Errorf("name should default to the ID, got %q", b.Name)
	}
}

func TestFeedByID(t *testing.T) {
	cfg := &Config{Feeds: []FeedConfig{{ID: "x"}, {ID: "y"}}}
	if f := cfg.FeedByID("y"); f == nil || f.ID != "y" {
		t.Errorf("FeedByID(y) = %+v", f)
	}
	if f := cfg.FeedByID("z"); f != nil {
		t.Errorf("FeedByID(z) = %+v, want nil", f)
	}
}

func TestSyncRelevantEquals(t *testing.T) {
	base := func() *Config {
		return &Config{
			Listen: "127.0.0.1:8099",
			Vault:  "./vault",
			Feeds: []FeedConfig{{
				ID: "a", Name: "A", URL: "https://x/a.ics", Enabled: true,
				SyncIntervalMinutes: 15, LastSync: "2025-01-01T00:00:00Z",
			}},
		}
	}

	a, b := base(), base()
	b.Feeds[0].LastSync = "2025-06-01T00:00:00Z"
	if !SyncRelevantEquals(a, b) {
		t.Error("LastSync-only change must compare equal")
	}

	b = base()
	b.Feeds[0].SyncIntervalMinutes = 5
	if SyncRelevantEquals(a, b) {
		t.Error("interval change must compare unequal")
	}

	b = base()
	b.Feeds = append(b.Feeds, FeedConfig{ID: "new"})
	if SyncRelevantEquals(a, b) {
		t.Error("added feed must compare unequal")
	}

	b = base()
	b.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	if SyncRelevantEquals(a, b) {
		t.Error("auth change must compare unequal")
	}
}
