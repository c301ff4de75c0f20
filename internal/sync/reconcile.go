package sync

import (
	"context"
	"fmt"
	"runtime"

	"icsnotes/internal/config"
	appLog "icsnotes/internal/log"
	"icsnotes/internal/model"
	"icsnotes/internal/note"
)

// batchSize is the number of events processed between cooperative
// checkpoints. The checkpoint only affects latency under load, never the
// result.
const batchSize = 10

// Outcome is the aggregate result of one reconciliation pass.
type Outcome struct {
	Created int
	Updated int
	Skipped int
	Errors  []string
}

type op int

const (
	opCreated op = iota
	opUpdated
	opSkipped
)

// Reconciler applies a batch of parsed events against one feed's note
// folder, computing the minimal create/update/skip set.
type Reconciler struct {
	store note.Store
	feed  config.FeedConfig
}

// NewReconciler builds a Reconciler for one feed.
func NewReconciler(store note.Store, feed config.FeedConfig) *Reconciler {
	return &Reconciler{store: store, feed: feed}
}

// Reconcile processes events in feed order. A failure on one event is
// recorded and never aborts the rest of the batch. Between batches the
// loop checkpoints: the processor is yielded and, if ctx was canceled,
// the pass stops at the boundary with the partial outcome.
func (r *Reconciler) Reconcile(ctx context.Context, events []model.Event, folder string) Outcome {
	var out Outcome

	for i, ev := range events {
		if i > 0 && i%batchSize == 0 {
			if err := checkpoint(ctx); err != nil {
				out.Errors = append(out.Errors, "reconciliation interrupted: "+err.Error())
				appLog.Warn("reconciliation interrupted",
					"feed", r.feed.ID, "processed", i, "total", len(events))
				return out
			}
		}

		result, err := r.reconcileOne(ev, folder)
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("event %q: %v", ev.Summary, err))
			appLog.Error("event reconcile failed", err, "feed", r.feed.ID, "summary", ev.Summary)
			continue
		}
		switch result {
		case opCreated:
			out.Created++
		case opUpdated:
			out.Updated++
		case opSkipped:
			out.Skipped++
		}
	}

	appLog.Info("reconcile completed", "feed", r.feed.ID, "folder", folder,
		"created", out.Created, "updated", out.Updated, "skipped", out.Skipped,
		"errors", len(out.Errors))
	return out
}

// reconcileOne decides the fate of a single event.
//
// Change detection is purely the sequence-number compare: a stored note
// whose sourceSequence equals the incoming event's sequence is untouched.
// A missing or unreadable stored sequence counts as -1, which can never
// match, so such notes are always rewritten.
func (r *Reconciler) reconcileOne(ev model.Event, folder string) (op, error) {
	path := NotePath(folder, ev)

	exists, err := r.store.Exists(path)
	if err != nil {
		return opSkipped, err
	}

	if !exists {
		if err := r.store.Write(path, BuildDocument(ev, r.feed)); err != nil {
			return opSkipped, err
		}
		return opCreated, nil
	}

	existing, err := r.store.Read(path)
	if err != nil {
		return opSkipped, err
	}

	if ev.Sequence != nil && *ev.Sequence == existing.Meta.SequenceOr(-1) {
		return opSkipped, nil
	}

	if err := r.store.Write(path, BuildDocument(ev, r.feed)); err != nil {
		return opSkipped, err
	}
	return opUpdated, nil
}

// checkpoint is the cooperative yield point between batches. Cancellation
// is only observed here, so a run never stops mid-batch.
func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	runtime.Gosched()
	return nil
}
