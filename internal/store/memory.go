package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"loyaltylink/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	byCode   map[string]model.CodeRecord // code -> record
	byOrder  map[string]string           // orderRef -> code
	codeSeq  []string                    // codes in insertion order, for listing
	jobs     map[string]*model.AnnotationJob
	jobSeq   []string // job ids in insertion order
}

func NewMemory() *Memory {
	return &Memory{
		byCode:  map[string]model.CodeRecord{},
		byOrder: map[string]string{},
		jobs:    map[string]*model.AnnotationJob{},
	}
}

func (m *Memory) InsertCode(ctx context.Context, orderRef, code string) (model.CodeRecord, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if _, ok := m.byCode[code]; ok {
		return model.CodeRecord{}, ErrCodeExists
	}
	rec := model.CodeRecord{ID: uuid.New().String(), OrderRef: orderRef, Code: code, IssuedAt: time.Now().UTC()}
	m.byCode[code] = rec
	m.byOrder[orderRef] = code
	m.codeSeq = append(m.codeSeq, code)
	return rec, nil
}

func (m *Memory) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	_, ok := m.byCode[code]
	return ok, nil
}

func (m *Memory) GetCodeByOrder(ctx context.Context, orderRef string) (model.CodeRecord, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	code, ok := m.byOrder[orderRef]
	if !ok {
		return model.CodeRecord{}, ErrNotFound
	}
	return m.byCode[code], nil
}

func (m *Memory) ListCodes(ctx context.Context, cursor string, limit int) ([]model.CodeRecord, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, c := range m.codeSeq {
			if m.byCode[c].ID == cursor { start = i + 1; break }
		}
	}
	if limit <= 0 { limit = 100 }
	out := []model.CodeRecord{}
	var next string
	for i := start; i < len(m.codeSeq) && len(out) < limit; i++ {
		rec := m.byCode[m.codeSeq[i]]
		out = append(out, rec)
		next = rec.ID
	}
	if start+len(out) >= len(m.codeSeq) { next = "" }
	return out, next, nil
}

// Annotation reconciliation queue

func (m *Memory) EnqueueAnnotation(ctx context.Context, orderRef, note string) (string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	id := uuid.New().String()
	now := time.Now().UTC()
	m.jobs[id] = &model.AnnotationJob{ID: id, OrderRef: orderRef, Note: note, Status: "pending", NextAttemptAt: now, CreatedAt: now}
	m.jobSeq = append(m.jobSeq, id)
	return id, nil
}

func (m *Memory) FetchDueAnnotations(ctx context.Context, limit int) ([]model.AnnotationJob, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	now := time.Now()
	out := []model.AnnotationJob{}
	for _, id := range m.jobSeq {
		j := m.jobs[id]
		if j == nil { continue }
		if (j.Status == "pending" || j.Status == "retry") && !j.NextAttemptAt.After(now) {
			out = append(out, *j)
			if limit > 0 && len(out) >= limit { break }
		}
	}
	return out, nil
}

func (m *Memory) MarkAnnotation(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil { return nil }
	j.Attempts++
	if success {
		j.Status = "delivered"
		now := time.Now().UTC()
		j.DeliveredAt = &now
		j.LastError = ""
	} else {
		j.Status = "retry"
		j.LastError = lastError
		if nextAttemptAt != nil { j.NextAttemptAt = *nextAttemptAt } else { j.NextAttemptAt = time.Now().Add(1 * time.Minute) }
	}
	return nil
}

func (m *Memory) FailAnnotation(ctx context.Context, id string, lastError string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil { return nil }
	j.Attempts++
	j.Status = "dead"
	j.LastError = lastError
	return nil
}

func (m *Memory) ListAnnotations(ctx context.Context, status, cursor string, limit int) ([]model.AnnotationJob, string, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	start := 0
	if cursor != "" {
		for i, id := range m.jobSeq {
			if id == cursor { start = i + 1; break }
		}
	}
	if limit <= 0 { limit = 100 }
	out := []model.AnnotationJob{}
	var next string
	for i := start; i < len(m.jobSeq) && len(out) < limit; i++ {
		j := m.jobs[m.jobSeq[i]]
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
		next = m.jobSeq[i]
	}
	if len(out) < limit { next = "" }
	return out, next, nil
}

func (m *Memory) RetryAnnotation(ctx context.Context, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	j := m.jobs[id]
	if j == nil { return ErrNotFound }
	j.Status = "pending"
	j.NextAttemptAt = time.Now()
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
