package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"icsnotes/internal/config"
	"icsnotes/internal/ics"
	"icsnotes/internal/model"
	"icsnotes/internal/note"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	store := note.NewDirStore(t.TempDir())
	return NewScheduler(NewRunner(store, ics.NewFetcher()))
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := newTestScheduler(t)

	// Safe before any Start.
	s.Stop()
	s.Stop()

	s.Start(context.Background(), nil, nil)
	s.Stop()
	s.Stop()
}

func TestScheduler_TriggerUnknownFeed(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Stop()

	if err := s.Trigger("nope"); err == nil {
		t.Fatal("trigger before Start should error")
	}

	s.Start(context.Background(), []config.FeedConfig{
		{ID: "known", Name: "Known", URL: "http://127.0.0.1:1", Enabled: true},
	}, nil)

	if err := s.Trigger("unknown"); err == nil {
		t.Fatal("trigger for unknown feed should error")
	}
}

func TestScheduler_DisabledFeedNotScheduled(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Stop()

	s.Start(context.Background(), []config.FeedConfig{
		{ID: "off", Name: "Off", URL: "http://127.0.0.1:1", Enabled: false},
	}, nil)

	if err := s.Trigger("off"); err == nil {
		t.Fatal("disabled feed must not be triggerable")
	}
}

func TestScheduler_ManualTriggerRuns(t *testing.T) {
	var payload atomic.Value
	payload.Store(icsPayload("UID:m1\nSUMMARY:Manual\nDTSTART:20250501T090000Z\nSEQUENCE:0"))
	srv := feedServer(t, &payload)

	store := note.NewDirStore(t.TempDir())
	s := NewScheduler(NewRunner(store, ics.NewFetcher()))
	defer s.Stop()

	results := make(chan model.SyncRunResult, 1)
	feeds := []config.FeedConfig{{
		ID: "manual", Name: "Manual", URL: srv.URL, Folder: "Cal",
		Enabled: true, // SyncIntervalMinutes 0: manual only
	}}

	s.Start(context.Background(), feeds, func(res model.SyncRunResult) {
		results <- res
	})

	if err := s.Trigger("manual"); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	select {
	case res := <-results:
		if !res.Success || res.Created != 1 {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("manual trigger never produced a result")
	}
}

func TestScheduler_SyncOnStartRuns(t *testing.T) {
	var payload atomic.Value
	payload.Store(icsPayload("UID:s1\nSUMMARY:Startup\nDTSTART:20250501T090000Z\nSEQUENCE:0"))
	srv := feedServer(t, &payload)

	store := note.NewDirStore(t.TempDir())
	s := NewScheduler(NewRunner(store, ics.NewFetcher()))
	defer s.Stop()

	results := make(chan model.SyncRunResult, 1)
	feeds := []config.FeedConfig{{
		ID: "boot", Name: "Boot", URL: srv.URL, Folder: "Cal",
		Enabled: true, SyncOnStart: true,
	}}

	s.Start(context.Background(), feeds, func(res model.SyncRunResult) {
		results <- res
	})

	select {
	case res := <-results:
		if !res.Success || res.Created != 1 {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("sync_on_start never produced a result")
	}
}

func TestScheduler_RestartReplacesTimers(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Stop()

	ctx := context.Background()
	s.Start(ctx, []config.FeedConfig{
		{ID: "a", Name: "A", URL: "http://127.0.0.1:1", Enabled: true},
	}, nil)

	// Second Start with a different feed set tears the old one down.
	s.Start(ctx, []config.FeedConfig{
		{ID: "b", Name: "B", URL: "http://127.0.0.1:1", Enabled: true},
	}, nil)

	if err := s.Trigger("a"); err == nil {
		t.Fatal("feed from the previous Start should be gone")
	}
	if err := s.Trigger("b"); err != nil {
		t.Fatalf("feed from the new Start should be schedulable: %v", err)
	}
}
