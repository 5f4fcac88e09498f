package sanctions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one event on the transaction stream. Counterparty is the
// only field screening requires.
type Transaction struct {
	ID           string          `json:"id"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Channel      string          `json:"channel,omitempty"`
	Country      string          `json:"country,omitempty"`
	Type         string          `json:"type,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// HasCounterparty reports whether a non-blank counterparty name is present
func (t Transaction) HasCounterparty() bool {
	return strings.TrimSpace(t.Counterparty) != ""
}

// StatusPendingReview is the only status a freshly flagged transaction carries
const StatusPendingReview = "pending review"

// FlaggedTransaction pairs a transaction with its best registry match
type FlaggedTransaction struct {
	ID          uuid.UUID   `json:"id"`
	Transaction Transaction `json:"transaction"`
	Entity      Entity      `json:"entity"`
	Score       float64     `json:"score"`
	Status      string      `json:"status"`
	FlaggedAt   time.Time   `json:"flagged_at"`
}

// NewFlaggedTransaction creates a flagged transaction in pending review
func NewFlaggedTransaction(tx Transaction, entity Entity, score float64, at time.Time) FlaggedTransaction {
	return FlaggedTransaction{
		ID:          uuid.New(),
		Transaction: tx,
		Entity:      entity,
		Score:       score,
		Status:      StatusPendingReview,
		FlaggedAt:   at.UTC(),
	}
}
