package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "icsnotes/internal/log"
)

// debounceInterval coalesces the bursts of write events editors and
// atomic-rename saves produce into a single reload.
const debounceInterval = 500 * time.Millisecond

// Watch watches the config file at path and invokes onChange with the
// freshly loaded config after each change, debounced. It blocks until ctx
// is canceled.
//
// The parent directory is watched rather than the file itself: atomic
// saves (temp file + rename) replace the inode, which would silently kill
// a file-level watch.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var debounce *time.Timer

	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			appLog.Error("config reload failed; keeping previous config", err, "path", path)
			return
		}
		appLog.Info("config reloaded", "path", path, "feed_count", len(cfg.Feeds))
		onChange(cfg)
	}

	appLog.Debug("config watch started", "path", path)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			appLog.Error("config watch error", err, "path", path)
		}
	}
}

// SyncRelevantEquals reports whether two configs describe the same sync
// setup, ignoring LastSync stamps. Used to tell a self-inflicted save
// (LastSync bookkeeping) from a real edit, so the scheduler is only
// restarted for the latter.
func SyncRelevantEquals(a, b *Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Listen != b.Listen || a.Vault != b.Vault || a.LogLevel != b.LogLevel {
		return false
	}
	if (a.BasicAuth == nil) != (b.BasicAuth == nil) {
		return false
	}
	if a.BasicAuth != nil && *a.BasicAuth != *b.BasicAuth {
		return false
	}
	if len(a.Feeds) != len(b.Feeds) {
		return false
	}
	for i := range a.Feeds {
		fa, fb := a.Feeds[i], b.Feeds[i]
		fa.LastSync, fb.LastSync = "", ""
		if fa != fb {
			return false
		}
	}
	return true
}
