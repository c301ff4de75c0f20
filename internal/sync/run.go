package sync

import (
	"context"
	"fmt"
	"time"

	"icsnotes/internal/config"
	"icsnotes/internal/ics"
	appLog "icsnotes/internal/log"
	"icsnotes/internal/model"
	"icsnotes/internal/note"
)

// Runner executes complete sync cycles: fetch → parse → reconcile →
// orphan-detect, one feed at a time.
type Runner struct {
	store   note.Store
	fetcher *ics.Fetcher
}

// NewRunner builds a Runner over the given store and fetcher.
func NewRunner(store note.Store, fetcher *ics.Fetcher) *Runner {
	return &Runner{store: store, fetcher: fetcher}
}

// RunOnce performs one sync cycle for a single feed and returns the
// aggregate result.
//
// Fetch failure is terminal for the run: nothing is reconciled and the
// result carries a single top-level error. A payload with no salvageable
// events is treated the same way, so a broken feed never empties the
// current-UID set and quarantines the whole folder. Orphan detection runs
// strictly after reconciliation so a note created this run is never
// treated as orphaned.
func (r *Runner) RunOnce(ctx context.Context, feed config.FeedConfig) model.SyncRunResult {
	res := model.SyncRunResult{
		FeedID:    feed.ID,
		FeedName:  feed.Name,
		StartedAt: time.Now(),
	}

	src := ics.Source{ID: feed.ID, URL: feed.URL}

	body, err := r.fetcher.Fetch(ctx, src)
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, fmt.Sprintf("fetch failed: %v", err))
		res.FinishedAt = time.Now()
		return res
	}

	events, err := ics.Parse(src, body)
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, fmt.Sprintf("parse failed: %v", err))
		res.FinishedAt = time.Now()
		return res
	}

	if err := r.store.EnsureFolder(feed.Folder); err != nil {
		res.Success = false
		res.Errors = append(res.Errors, fmt.Sprintf("folder %q: %v", feed.Folder, err))
		res.FinishedAt = time.Now()
		return res
	}

	outcome := NewReconciler(r.store, feed).Reconcile(ctx, events, feed.Folder)
	res.Created = outcome.Created
	res.Updated = outcome.Updated
	res.Skipped = outcome.Skipped
	res.Errors = append(res.Errors, outcome.Errors...)

	currentUIDs := make(map[string]struct{}, len(events))
	for _, ev := range events {
		currentUIDs[ev.UID] = struct{}{}
	}

	moved, orphanErrs := DetectOrphans(r.store, feed.Folder, currentUIDs)
	res.Quarantined = moved
	res.Errors = append(res.Errors, orphanErrs...)

	res.Success = true
	res.FinishedAt = time.Now()

	appLog.Info("sync run finished",
		"feed", feed.ID, "name", feed.Name,
		"created", res.Created, "updated", res.Updated, "skipped", res.Skipped,
		"quarantined", res.Quarantined, "errors", len(res.Errors),
		"took", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	return res
}
