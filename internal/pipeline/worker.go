package pipeline

import (
	"context"
	"log"
	"time"

	"loyaltylink/internal/metrics"
	"loyaltylink/internal/store"
)

// Worker retries queued order annotations out of band. Jobs land in the queue
// when the inline annotate stage fails after the code was already persisted.
type Worker struct {
	Store       store.Store
	Annotator   Annotator
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
}

func NewWorker(s store.Store, a Annotator, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{Store: s, Annotator: a, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Interval: time.Second}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	jobs, err := w.Store.FetchDueAnnotations(ctx, 50)
	if err != nil || len(jobs) == 0 {
		return
	}
	for _, j := range jobs {
		var attemptErr error
		if w.Annotator == nil {
			attemptErr = ErrNoAnnotator
		} else {
			_, attemptErr = w.Annotator.AnnotateOrder(ctx, j.OrderRef, j.Note)
		}
		if attemptErr == nil {
			_ = w.Store.MarkAnnotation(ctx, j.ID, true, nil, "")
			metrics.AnnotationJobs.WithLabelValues("delivered").Inc()
			continue
		}
		if j.Attempts+1 >= w.MaxAttempts {
			_ = w.Store.FailAnnotation(ctx, j.ID, attemptErr.Error())
			metrics.AnnotationJobs.WithLabelValues("dead").Inc()
			log.Printf("annotation worker: job %s dead after %d attempts: %v", j.ID, j.Attempts+1, attemptErr)
			continue
		}
		next := time.Now().Add(nextBackoff(j.Attempts))
		_ = w.Store.MarkAnnotation(ctx, j.ID, false, &next, attemptErr.Error())
		metrics.AnnotationJobs.WithLabelValues("retry").Inc()
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
