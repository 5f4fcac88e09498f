// Package records holds the business-shaped payloads the load generator
// publishes onto the non-screening topics.
package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the discrete band a numeric risk score maps to
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelFor maps a 0-100 score to its band
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 30:
		return RiskLow
	case score < 60:
		return RiskMedium
	case score < 80:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// BudgetUpdate reports spend against an allocation. Spent never exceeds
// Allocated; Utilization is Spent/Allocated in percent.
type BudgetUpdate struct {
	ID          string          `json:"id"`
	Department  string          `json:"department"`
	Category    string          `json:"category"`
	Allocated   decimal.Decimal `json:"allocated"`
	Spent       decimal.Decimal `json:"spent"`
	Utilization float64         `json:"utilization"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewBudgetUpdate clamps spent to allocated and derives utilization
func NewBudgetUpdate(id, department, category, currency string, allocated, spent decimal.Decimal, at time.Time) BudgetUpdate {
	if spent.GreaterThan(allocated) {
		spent = allocated
	}
	if spent.IsNegative() {
		spent = decimal.Zero
	}
	util := 0.0
	if allocated.IsPositive() {
		util, _ = spent.Div(allocated).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}
	return BudgetUpdate{
		ID:          id,
		Department:  department,
		Category:    category,
		Allocated:   allocated,
		Spent:       spent,
		Utilization: util,
		Currency:    currency,
		Timestamp:   at.UTC(),
	}
}

type ProjectUpdate struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	Budget    decimal.Decimal `json:"budget"`
	Spent     decimal.Decimal `json:"spent"`
	RiskScore float64         `json:"risk_score"`
	RiskLevel RiskLevel       `json:"risk_level"`
	Timestamp time.Time       `json:"timestamp"`
}

type ComplianceAlert struct {
	ID          string    `json:"id"`
	Regulation  string    `json:"regulation"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Department  string    `json:"department"`
	Timestamp   time.Time `json:"timestamp"`
}

type RiskEvent struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Score       float64   `json:"score"`
	Level       RiskLevel `json:"level"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// HealthReport is the generator's periodic self-report on system-metrics
type HealthReport struct {
	Source            string           `json:"source"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
	MessagesPublished int64            `json:"messages_published"`
	Errors            int64            `json:"errors"`
	PerTopic          map[string]int64 `json:"per_topic"`
	ActiveStreams     []string         `json:"active_streams"`
	Timestamp         time.Time        `json:"timestamp"`
}
