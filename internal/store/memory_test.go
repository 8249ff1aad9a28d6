package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryInsertCodeDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.InsertCode(ctx, "1001", "A12345678"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := m.InsertCode(ctx, "1002", "A12345678")
	if !errors.Is(err, ErrCodeExists) {
		t.Fatalf("want ErrCodeExists, got %v", err)
	}
	ok, err := m.CodeExists(ctx, "A12345678")
	if err != nil || !ok {
		t.Fatalf("exists: ok=%v err=%v", ok, err)
	}
}

func TestMemoryInsertCodeConcurrent(t *testing.T) {
	// The same candidate code raced from many goroutines must win exactly once.
	m := NewMemory()
	ctx := context.Background()
	const n = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.InsertCode(ctx, "1001", "B99999999"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning insert, got %d", count)
	}
}

func TestMemoryGetCodeByOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.GetCodeByOrder(ctx, "1001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := m.InsertCode(ctx, "1001", "A10000000"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rec, err := m.GetCodeByOrder(ctx, "1001")
	if err != nil || rec.Code != "A10000000" {
		t.Fatalf("get: rec=%+v err=%v", rec, err)
	}
}

func TestMemoryAnnotationQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueAnnotation(ctx, "1001", "Verification Code: A10000000")
	if err != nil || id == "" {
		t.Fatalf("enqueue: id=%q err=%v", id, err)
	}
	due, err := m.FetchDueAnnotations(ctx, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("fetch due: %d err=%v", len(due), err)
	}

	// failed attempt scheduled into the future is no longer due
	next := time.Now().Add(time.Hour)
	if err := m.MarkAnnotation(ctx, id, false, &next, "boom"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, _ = m.FetchDueAnnotations(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("job should not be due after future reschedule, got %d", len(due))
	}

	// admin requeue makes it due again
	if err := m.RetryAnnotation(ctx, id); err != nil {
		t.Fatalf("retry: %v", err)
	}
	due, _ = m.FetchDueAnnotations(ctx, 10)
	if len(due) != 1 {
		t.Fatalf("job should be due after requeue, got %d", len(due))
	}

	if err := m.MarkAnnotation(ctx, id, true, nil, ""); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	jobs, _, err := m.ListAnnotations(ctx, "delivered", "", 10)
	if err != nil || len(jobs) != 1 || jobs[0].DeliveredAt == nil {
		t.Fatalf("list delivered: %+v err=%v", jobs, err)
	}
}
