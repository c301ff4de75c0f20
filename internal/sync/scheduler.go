package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"icsnotes/internal/config"
	appLog "icsnotes/internal/log"
	"icsnotes/internal/model"
)

// Scheduler owns the per-feed periodic timers. Each enabled feed with a
// positive interval gets one cron entry; manual-only feeds (interval 0)
// get a never-firing entry so manual triggers flow through the same
// wrapped job.
//
// Jobs are wrapped with cron's SkipIfStillRunning, so a tick for a feed
// whose previous run is still in flight is skipped rather than overlapped
// or queued. Manual triggers run the same wrapped job and get the same
// guarantee.
type Scheduler struct {
	runner *Runner

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewScheduler builds a Scheduler over the given runner.
func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{runner: runner}
}

// Start registers timers for every enabled feed and begins scheduling.
// A prior Start's timers are torn down first. The teardown does not wait
// for runs already in flight, and the replacement cron carries a fresh
// overlap guard, so a run still finishing under the old guard can briefly
// overlap the new schedule's first tick for the same feed. onResult is
// called with each run's result.
func (s *Scheduler) Start(ctx context.Context, feeds []config.FeedConfig, onResult func(model.SyncRunResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	lg := cronLogger{}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(lg),
		cron.SkipIfStillRunning(lg),
	))
	s.entries = make(map[string]cron.EntryID)

	var onStart []cron.EntryID

	for _, feed := range feeds {
		if !feed.Enabled {
			continue
		}
		feed := feed
		job := cron.FuncJob(func() {
			res := s.runner.RunOnce(ctx, feed)
			if onResult != nil {
				onResult(res)
			}
		})

		var schedule cron.Schedule
		if feed.SyncIntervalMinutes > 0 {
			schedule = cron.Every(time.Duration(feed.SyncIntervalMinutes) * time.Minute)
		} else {
			schedule = manualOnly{}
		}

		id := s.cron.Schedule(schedule, job)
		s.entries[feed.ID] = id
		if feed.SyncOnStart {
			onStart = append(onStart, id)
		}

		appLog.Info("feed scheduled", "feed", feed.ID, "name", feed.Name,
			"interval_minutes", feed.SyncIntervalMinutes, "sync_on_start", feed.SyncOnStart)
	}

	s.cron.Start()

	for _, id := range onStart {
		entry := s.cron.Entry(id)
		go entry.WrappedJob.Run()
	}
}

// Stop cancels every outstanding timer. Idempotent and safe to call when
// nothing is running. A run already executing is not aborted; only future
// ticks are prevented.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	s.entries = nil
}

// Trigger queues one manual run for the given feed. The run goes through
// the same skip-if-still-running wrapper as scheduled ticks.
func (s *Scheduler) Trigger(feedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return fmt.Errorf("scheduler is not running")
	}
	id, ok := s.entries[feedID]
	if !ok {
		return fmt.Errorf("no scheduled feed with id %q", feedID)
	}
	entry := s.cron.Entry(id)
	go entry.WrappedJob.Run()
	return nil
}

// manualOnly is a cron schedule that never fires; the entry exists only
// so manual triggers share the wrapped job.
type manualOnly struct{}

func (manualOnly) Next(time.Time) time.Time { return time.Time{} }

// cronLogger adapts the app logger to cron's Logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
