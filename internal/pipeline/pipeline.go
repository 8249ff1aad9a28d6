// Package pipeline orchestrates order processing: eligibility, code
// generation and persistence, partner notification, and order annotation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"loyaltylink/internal/codes"
	"loyaltylink/internal/metrics"
	"loyaltylink/internal/model"
	"loyaltylink/internal/store"
)

// Notifier pushes an issued code to the partner loyalty system.
type Notifier interface {
	Notify(ctx context.Context, code string) ([]byte, error)
}

// Annotator writes the verification note back onto the source order.
type Annotator interface {
	AnnotateOrder(ctx context.Context, orderRef, note string) (string, error)
}

// EventSink receives one event per pipeline stage, keyed by order reference.
type EventSink interface {
	Publish(orderRef string, evt model.StageEvent)
}

// ErrNoAnnotator is returned when the commerce client was never initialized
// (missing configuration at startup). The process keeps running; annotate
// stages fail cleanly instead.
var ErrNoAnnotator = errors.New("order annotator not configured")

type Pipeline struct {
	Store     store.Store
	Generator *codes.Generator
	Notifier  Notifier
	Annotator Annotator
	Events    EventSink

	// Products maps qualifying product ids to their code prefix letter.
	Products       map[int64]string
	SkipTestOrders bool

	// StepTimeout bounds each outbound call; pipeline runs detached from the
	// request lifecycle, so this is the only thing keeping a run from hanging.
	StepTimeout time.Duration
}

func New(s store.Store, g *codes.Generator, n Notifier, a Annotator, events EventSink, products map[int64]string) *Pipeline {
	return &Pipeline{
		Store:          s,
		Generator:      g,
		Notifier:       n,
		Annotator:      a,
		Events:         events,
		Products:       products,
		SkipTestOrders: true,
		StepTimeout:    10 * time.Second,
	}
}

// Note renders the order note for a code.
func Note(code string) string { return "Verification Code: " + code }

// Process runs the saga for one order webhook. Steps are strictly sequential;
// the first failure after the eligibility check aborts the remaining steps.
// Completed steps are never rolled back: a persisted code whose annotation
// fails stays in the store, and the annotation is queued for reconciliation.
func (p *Pipeline) Process(ctx context.Context, order model.OrderWebhook) model.Result {
	orderRef := strconv.FormatInt(order.ID, 10)
	res := model.Result{OrderRef: orderRef, Stage: model.StageReceived}
	p.emit(orderRef, model.StageReceived, "ok", "", nil)

	prefix, eligible := p.eligiblePrefix(order)
	if !eligible {
		res.Stage = model.StageEligibility
		res.Skipped = true
		p.emit(orderRef, model.StageEligibility, "skip", "", nil)
		log.Printf("pipeline: order %s skipped (no qualifying line item)", orderRef)
		return res
	}
	p.emit(orderRef, model.StageEligibility, "ok", "", nil)

	// Replayed webhook for an order that already holds a code: reuse the
	// record, repeat no side effects.
	if rec, err := p.Store.GetCodeByOrder(ctx, orderRef); err == nil {
		res.Stage = model.StagePersisted
		res.Code = rec.Code
		p.emit(orderRef, model.StagePersisted, "ok", rec.Code, nil)
		log.Printf("pipeline: order %s already has code %s", orderRef, rec.Code)
		return res
	} else if !errors.Is(err, store.ErrNotFound) {
		res.Err = fmt.Errorf("code lookup: %w", err)
		p.emit(orderRef, model.StageGenerated, "error", "", res.Err)
		return res
	}

	genCtx, cancel := context.WithTimeout(ctx, p.StepTimeout)
	rec, err := p.Generator.Generate(genCtx, orderRef, prefix)
	cancel()
	if err != nil {
		res.Err = fmt.Errorf("generate code: %w", err)
		p.emit(orderRef, model.StageGenerated, "error", "", res.Err)
		return res
	}
	// The atomic insert both generated and persisted the code.
	res.Code = rec.Code
	res.Stage = model.StagePersisted
	p.emit(orderRef, model.StageGenerated, "ok", rec.Code, nil)
	p.emit(orderRef, model.StagePersisted, "ok", rec.Code, nil)

	notifyCtx, cancel := context.WithTimeout(ctx, p.StepTimeout)
	start := time.Now()
	_, err = p.Notifier.Notify(notifyCtx, rec.Code)
	cancel()
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.PartnerLatency.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		res.Err = fmt.Errorf("partner notify: %w", err)
		p.emit(orderRef, model.StageNotified, "error", rec.Code, res.Err)
		return res
	}
	res.Stage = model.StageNotified
	p.emit(orderRef, model.StageNotified, "ok", rec.Code, nil)

	note := Note(rec.Code)
	err = p.annotate(ctx, orderRef, note)
	if err != nil {
		res.Err = fmt.Errorf("annotate order: %w", err)
		p.emit(orderRef, model.StageAnnotated, "error", rec.Code, res.Err)
		// No rollback; queue the note for the reconciliation worker instead.
		if _, qerr := p.Store.EnqueueAnnotation(ctx, orderRef, note); qerr != nil {
			log.Printf("pipeline: order %s: enqueue annotation: %v", orderRef, qerr)
		}
		return res
	}
	res.Stage = model.StageAnnotated
	p.emit(orderRef, model.StageAnnotated, "ok", rec.Code, nil)
	return res
}

func (p *Pipeline) annotate(ctx context.Context, orderRef, note string) error {
	if p.Annotator == nil {
		return ErrNoAnnotator
	}
	annCtx, cancel := context.WithTimeout(ctx, p.StepTimeout)
	defer cancel()
	_, err := p.Annotator.AnnotateOrder(annCtx, orderRef, note)
	return err
}

// eligiblePrefix returns the prefix of the first qualifying line item, in
// payload order. One code per order no matter how many items qualify.
func (p *Pipeline) eligiblePrefix(order model.OrderWebhook) (string, bool) {
	if order.Test && p.SkipTestOrders {
		return "", false
	}
	for _, li := range order.LineItems {
		if prefix, ok := p.Products[li.ProductID]; ok {
			return prefix, true
		}
	}
	return "", false
}

func (p *Pipeline) emit(orderRef, stage, outcome, code string, err error) {
	metrics.PipelineStages.WithLabelValues(stage, outcome).Inc()
	if p.Events == nil {
		return
	}
	evt := model.StageEvent{
		OrderRef: orderRef,
		Stage:    stage,
		Outcome:  outcome,
		Code:     code,
		TS:       time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		evt.Error = err.Error()
	}
	p.Events.Publish(orderRef, evt)
}
