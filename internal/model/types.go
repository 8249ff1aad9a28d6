package model

import "time"

// OrderWebhook is the inbound orders/create payload. Only the fields the
// pipeline inspects are decoded; the rest of the Shopify payload is ignored.
type OrderWebhook struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name,omitempty"`
	Test      bool       `json:"test,omitempty"`
	LineItems []LineItem `json:"line_items"`
}

type LineItem struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id,omitempty"`
	Quantity  int   `json:"quantity"`
}

// CodeRecord is the persisted association between an order and its issued
// redemption code. Created once per eligible order, never updated or deleted.
type CodeRecord struct {
	ID       string    `json:"id"`
	OrderRef string    `json:"orderRef"`
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issuedAt"`
}

// AnnotationJob is a queued re-attempt at writing the order note after the
// inline annotate stage failed. Mirrors the delivery queue shape: status is
// pending -> delivered | dead.
type AnnotationJob struct {
	ID            string     `json:"id"`
	OrderRef      string     `json:"orderRef"`
	Note          string     `json:"note"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError,omitempty"`
	NextAttemptAt time.Time  `json:"nextAttemptAt"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Pipeline stage names, in execution order.
const (
	StageReceived    = "received"
	StageEligibility = "eligibility"
	StageGenerated   = "generated"
	StagePersisted   = "persisted"
	StageNotified    = "notified"
	StageAnnotated   = "annotated"
)

// StageEvent is published on the event broker after every pipeline stage.
type StageEvent struct {
	OrderRef string `json:"orderRef"`
	Stage    string `json:"stage"`
	Outcome  string `json:"outcome"` // ok, skip, error
	Code     string `json:"code,omitempty"`
	Error    string `json:"error,omitempty"`
	TS       string `json:"ts"`
}

// Result is the terminal outcome of one pipeline run.
type Result struct {
	OrderRef string `json:"orderRef"`
	Stage    string `json:"stage"` // last stage reached
	Skipped  bool   `json:"skipped"`
	Code     string `json:"code,omitempty"`
	Err      error  `json:"-"`
}
