// Package codes issues unique prefixed redemption codes backed by the store.
package codes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"loyaltylink/internal/metrics"
	"loyaltylink/internal/model"
	"loyaltylink/internal/store"
)

// ErrExhausted is returned when every attempted code collided with an
// existing record. With an 8-digit space per prefix this only happens when
// the space is nearly full or the store misbehaves.
var ErrExhausted = errors.New("code generation attempts exhausted")

type Generator struct {
	Store       store.Store
	MaxAttempts int
	// rint draws a candidate number; swappable in tests.
	rint func() int
}

func NewGenerator(s store.Store, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Generator{Store: s, MaxAttempts: maxAttempts, rint: func() int { return 10000000 + rand.Intn(90000000) }}
}

// Generate draws candidate codes of the form <prefix><8 digits> and inserts
// the first one the store accepts. The insert itself is the uniqueness check:
// store.ErrCodeExists means another record holds the code and a fresh draw is
// made. Any other store error aborts immediately.
func (g *Generator) Generate(ctx context.Context, orderRef, prefix string) (model.CodeRecord, error) {
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.CodeRecord{}, err
		}
		code := fmt.Sprintf("%s%08d", prefix, g.rint())
		rec, err := g.Store.InsertCode(ctx, orderRef, code)
		if err == nil {
			metrics.CodeGenAttempts.Observe(float64(attempt + 1))
			return rec, nil
		}
		if errors.Is(err, store.ErrCodeExists) {
			continue
		}
		return model.CodeRecord{}, fmt.Errorf("insert code: %w", err)
	}
	return model.CodeRecord{}, fmt.Errorf("%w after %d attempts", ErrExhausted, g.MaxAttempts)
}
