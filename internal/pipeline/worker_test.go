package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"loyaltylink/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []string
}

type markRec struct {
	ID      string
	Success bool
	LastErr string
}

func (r *recordStore) MarkAnnotation(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkAnnotation(ctx, id, success, nextAttemptAt, lastError)
}

func (r *recordStore) FailAnnotation(ctx context.Context, id string, lastError string) error {
	r.mu.Lock()
	r.fails = append(r.fails, id)
	r.mu.Unlock()
	return r.Memory.FailAnnotation(ctx, id, lastError)
}

func TestWorkerProcessOnceSuccess(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	ann := &fakeAnnotator{}
	w := NewWorker(rs, ann, 3)
	id, err := rs.Memory.EnqueueAnnotation(context.Background(), "1001", "Verification Code: A12345678")
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}

	w.processOnce()

	if ann.notes["1001"] != "Verification Code: A12345678" {
		t.Fatalf("annotator saw %v", ann.notes)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got %+v", rs.marks)
	}
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	ann := &fakeAnnotator{err: errors.New("still down")}
	w := NewWorker(rs, ann, 1)
	_, _ = rs.Memory.EnqueueAnnotation(context.Background(), "1002", "Verification Code: B00000001")

	w.processOnce()

	if len(rs.fails) != 1 {
		t.Fatalf("expected dead-letter, marks=%+v fails=%+v", rs.marks, rs.fails)
	}
	jobs, _, _ := rs.Memory.ListAnnotations(context.Background(), "dead", "", 10)
	if len(jobs) != 1 {
		t.Fatalf("expected one dead job, got %d", len(jobs))
	}
}

func TestWorkerRetrySchedulesBackoff(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	ann := &fakeAnnotator{err: errors.New("transient")}
	w := NewWorker(rs, ann, 5)
	_, _ = rs.Memory.EnqueueAnnotation(context.Background(), "1003", "Verification Code: A00000002")

	w.processOnce()

	if len(rs.marks) != 1 || rs.marks[0].Success {
		t.Fatalf("expected failed mark, got %+v", rs.marks)
	}
	// Rescheduled into the future: nothing due on the next sweep.
	due, _ := rs.Memory.FetchDueAnnotations(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("job should be backed off, got %d due", len(due))
	}
}

func TestNextBackoffGrowsAndCaps(t *testing.T) {
	if nextBackoff(0) != time.Second {
		t.Fatalf("attempt 0: %v", nextBackoff(0))
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("attempt 3: %v", nextBackoff(3))
	}
	if nextBackoff(100) > time.Hour {
		t.Fatalf("backoff must cap at an hour, got %v", nextBackoff(100))
	}
}
