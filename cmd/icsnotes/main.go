package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"
	"time"

	"icsnotes/internal/config"
	"icsnotes/internal/ics"
	appLog "icsnotes/internal/log"
	"icsnotes/internal/model"
	"icsnotes/internal/note"
	feedsync "icsnotes/internal/sync"
	"icsnotes/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	vault      string
	feedID     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI overrides.
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}
	if flags.vault != "" {
		cfg.Vault = flags.vault
	}
	if flags.debug {
		cfg.LogLevel = "debug"
	}
	applyLogLevel(cfg.LogLevel)

	appLog.Info("icsnotes starting",
		"config", flags.configPath,
		"listen", cfg.Listen,
		"vault", cfg.Vault,
		"feed_count", len(cfg.Feeds),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	store := note.NewDirStore(cfg.Vault)
	runner := feedsync.NewRunner(store, ics.NewFetcher())

	if flags.once {
		os.Exit(runOnce(ctx, runner, cfg, flags.feedID))
	}

	runDaemon(ctx, runner, cfg, flags.configPath)
	appLog.Info("icsnotes exiting")
}

// runOnce syncs the selected feeds sequentially and returns the exit code:
// 0 when every run succeeded, 1 otherwise.
func runOnce(ctx context.Context, runner *feedsync.Runner, cfg *config.Config, feedID string) int {
	failed := false
	ran := 0

	for _, feed := range cfg.Feeds {
		if feedID != "" && feed.ID != feedID {
			continue
		}
		if !feed.Enabled {
			appLog.Info("feed disabled, skipping", "feed", feed.ID, "name", feed.Name)
			continue
		}

		res := runner.RunOnce(ctx, feed)
		ran++
		if !res.Success {
			failed = true
			continue
		}
		if f := cfg.FeedByID(feed.ID); f != nil {
			f.LastSync = res.FinishedAt.Format(time.RFC3339)
		}
	}

	if ran == 0 {
		appLog.Warn("no feeds matched", "feed_id", feedID)
		return 1
	}
	if failed {
		return 1
	}
	return 0
}

// runDaemon starts the scheduler, the HTTP API and the config watcher, and
// blocks until the root context is canceled.
func runDaemon(ctx context.Context, runner *feedsync.Runner, cfg *config.Config, configPath string) {
	sched := feedsync.NewScheduler(runner)
	defer sched.Stop()

	server := web.NewServer(snapshot(cfg), sched)

	// cfg is the single mutable copy; the web server only ever sees
	// immutable snapshots pushed via SetConfig.
	var cfgMu stdsync.Mutex

	onResult := func(res model.SyncRunResult) {
		server.RecordResult(res)
		if !res.Success {
			return
		}
		cfgMu.Lock()
		defer cfgMu.Unlock()
		if f := cfg.FeedByID(res.FeedID); f != nil {
			f.LastSync = res.FinishedAt.Format(time.RFC3339)
			if err := cfg.Save(configPath); err != nil {
				appLog.Error("failed to persist last_sync", err, "feed", res.FeedID)
			}
			server.SetConfig(snapshot(cfg))
		}
	}

	sched.Start(ctx, cfg.Feeds, onResult)

	// Hot reload: restart the scheduler when the config file changes in a
	// way that matters. Saves triggered by last_sync bookkeeping above are
	// recognized and absorbed without a restart.
	go func() {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			cfgMu.Lock()
			defer cfgMu.Unlock()
			restart := !config.SyncRelevantEquals(cfg, next)
			if next.Vault != cfg.Vault || next.Listen != cfg.Listen {
				appLog.Warn("vault/listen changes require a process restart to take effect",
					"vault", next.Vault, "listen", next.Listen)
			}
			cfg = next
			server.SetConfig(snapshot(cfg))
			if !restart {
				appLog.Debug("config change is bookkeeping only, ignoring")
				return
			}
			applyLogLevel(cfg.LogLevel)
			appLog.Info("config changed, restarting scheduler", "feed_count", len(cfg.Feeds))
			sched.Start(ctx, cfg.Feeds, onResult)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("config watch stopped", err, "path", configPath)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Handler(),
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err, "listen", cfg.Listen)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
}

// snapshot returns a copy of cfg whose feed slice is independent of the
// original, safe to hand to concurrent readers.
func snapshot(cfg *config.Config) *config.Config {
	out := *cfg
	out.Feeds = append([]config.FeedConfig(nil), cfg.Feeds...)
	if cfg.BasicAuth != nil {
		ba := *cfg.BasicAuth
		out.BasicAuth = &ba
	}
	return &out
}

func applyLogLevel(level string) {
	switch level {
	case "debug":
		appLog.SetLevel(appLog.LevelDebug)
	case "warn":
		appLog.SetLevel(appLog.LevelWarn)
	case "error":
		appLog.SetLevel(appLog.LevelError)
	default:
		appLog.SetLevel(appLog.LevelInfo)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./icsnotes.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.vault, "vault", "", "Note vault directory (overrides config if set)")
	flag.StringVar(&cfg.feedID, "feed", "", "With -once, sync only the feed with this ID")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync cycle per enabled feed and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
