package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, 10*time.Minute)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	record, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %#v", record)
	}
}

func TestStoreMarkRunningPreservesLifetime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Record{
		JobID:    "job-1",
		NoteID:   5,
		Status:   StatusQueued,
		Progress: ProgressInfo{Percent: 0, Stage: "queued"},
	}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	queued, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if queued.CreatedAt.IsZero() || queued.ExpiresAt.IsZero() {
		t.Fatalf("queued record missing lifetime fields: %#v", queued)
	}

	if err := store.MarkRunning(ctx, "job-1"); err != nil {
		t.Fatalf("MarkRunning returned error: %v", err)
	}

	running, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if running.Status != StatusRunning || running.Progress.Stage != "start" {
		t.Fatalf("unexpected record after MarkRunning: %#v", running)
	}
	// 実行開始はレコードの寿命を作り直さない
	if !running.CreatedAt.Equal(queued.CreatedAt) {
		t.Fatalf("CreatedAt changed: %v -> %v", queued.CreatedAt, running.CreatedAt)
	}
	if !running.ExpiresAt.Equal(queued.ExpiresAt) {
		t.Fatalf("ExpiresAt changed: %v -> %v", queued.ExpiresAt, running.ExpiresAt)
	}
	if running.NoteID != 5 {
		t.Fatalf("NoteID lost: %#v", running)
	}
}

func TestStoreMarkRunningMissingJob(t *testing.T) {
	store := newTestStore(t)

	if err := store.MarkRunning(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestStoreMarkDone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Record{JobID: "job-1", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := store.MarkRunning(ctx, "job-1"); err != nil {
		t.Fatalf("MarkRunning returned error: %v", err)
	}
	if err := store.UpdateProgress(ctx, "job-1", ProgressInfo{Percent: 60, Stage: "entry"}); err != nil {
		t.Fatalf("UpdateProgress returned error: %v", err)
	}
	if err := store.MarkDone(ctx, "job-1", "/media/notes/pdf/doc.pdf", nil); err != nil {
		t.Fatalf("MarkDone returned error: %v", err)
	}

	record, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Status != StatusSucceeded || record.Progress.Percent != 100 {
		t.Fatalf("unexpected record after MarkDone: %#v", record)
	}
	if record.Result != "/media/notes/pdf/doc.pdf" {
		t.Fatalf("unexpected result: %s", record.Result)
	}
}

func TestStoreMarkFailedClearsResult(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Record{JobID: "job-1", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := store.MarkDone(ctx, "job-1", "/media/notes/pdf/doc.pdf", nil); err != nil {
		t.Fatalf("MarkDone returned error: %v", err)
	}
	if err := store.MarkFailed(ctx, "job-1", &ErrorInfo{Code: "STORAGE_ERROR", Message: "disk full"}); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	record, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Status != StatusFailed || record.Result != "" {
		t.Fatalf("unexpected record after MarkFailed: %#v", record)
	}
	if record.Error == nil || record.Error.Code != "STORAGE_ERROR" {
		t.Fatalf("error info missing: %#v", record.Error)
	}
}
