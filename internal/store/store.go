package store

import (
	"context"
	"errors"
	"time"

	"loyaltylink/internal/model"
)

// Store is the persistence interface used by the pipeline and the API server.
type Store interface {
	// Code records. InsertCode is an atomic insert-if-absent keyed by code;
	// a duplicate code yields ErrCodeExists and no write.
	InsertCode(ctx context.Context, orderRef, code string) (model.CodeRecord, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	GetCodeByOrder(ctx context.Context, orderRef string) (model.CodeRecord, error)
	ListCodes(ctx context.Context, cursor string, limit int) ([]model.CodeRecord, string, error)

	// Annotation reconciliation queue
	EnqueueAnnotation(ctx context.Context, orderRef, note string) (string, error)
	FetchDueAnnotations(ctx context.Context, limit int) ([]model.AnnotationJob, error)
	MarkAnnotation(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string) error
	FailAnnotation(ctx context.Context, id string, lastError string) error
	ListAnnotations(ctx context.Context, status, cursor string, limit int) ([]model.AnnotationJob, string, error)
	RetryAnnotation(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// ErrCodeExists signals a duplicate code on insert; the generator reacts by
// drawing a fresh code.
var ErrCodeExists = errors.New("code already exists")
