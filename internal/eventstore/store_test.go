package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-callsynth/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTemp(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "runs.db")
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.StartRun(ctx, Run{ID: "r"}); err != nil {
		t.Fatalf("ephemeral start should be a no-op: %v", err)
	}
	if _, err := es.GetRun(ctx, "r"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	es := openTemp(t, config.EventStoreConfig{RetentionMode: "session"})

	if err := es.StartRun(ctx, Run{ID: "run-1", Language: "en-us", Turns: 4}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	for _, typ := range []string{EventRunStarted, EventTurnScheduled, EventRunCompleted} {
		if err := es.AppendRunEvent(ctx, RunEvent{RunID: "run-1", Type: typ, Payload: []byte(`{"ok":true}`)}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	if err := es.FinishRun(ctx, Outcome{RunID: "run-1", Status: StatusCompleted, Artifact: "stereo-run-1_en-us.wav", Duration: 7.5}); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err := es.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != StatusCompleted || run.Duration != 7.5 || run.Turns != 4 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.FinishedAt.IsZero() {
		t.Fatal("expected finished_at to be set")
	}

	events, err := es.ListRunEvents(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 || events[0].Type != EventRunStarted || events[2].Type != EventRunCompleted {
		t.Fatalf("unexpected events: %+v", events)
	}
	if string(events[1].Payload) != `{"ok":true}` {
		t.Fatalf("unexpected payload: %s", events[1].Payload)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	es := openTemp(t, config.EventStoreConfig{RetentionMode: "session"})
	err := es.FinishRun(context.Background(), Outcome{RunID: "missing", Status: StatusFailed})
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestPruneByDaysAndRuns(t *testing.T) {
	ctx := context.Background()
	es := openTemp(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxRuns: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.StartRun(ctx, Run{ID: "old-run"}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := es.AppendRunEvent(ctx, RunEvent{RunID: "old-run", Type: EventRunStarted}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for _, id := range []string{"mid-run", "new-run"} {
		if err := es.StartRun(ctx, Run{ID: id}); err != nil {
			t.Fatalf("start run: %v", err)
		}
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListRunEvents(ctx, "old-run", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old run events pruned")
	}
	runs, err := es.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "new-run" {
		t.Fatalf("expected only new-run to survive, got %+v", runs)
	}
}
