package screening

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes recorded on the screening.transactions counter
const (
	OutcomeSkipped  = "skipped"
	OutcomeClear    = "clear"
	OutcomeNearMiss = "near_miss"
	OutcomeFlagged  = "flagged"
)

// instruments mirror the Prometheus collectors for OTLP export
type instruments struct {
	transactions metric.Int64Counter
	bestScore    metric.Float64Histogram
	duration     metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	transactions, err := meter.Int64Counter("screening.transactions",
		metric.WithDescription("Transactions handled by the matcher, by outcome"),
		metric.WithUnit("{transaction}"))
	if err != nil {
		return nil, fmt.Errorf("screening.transactions: %w", err)
	}
	bestScore, err := meter.Float64Histogram("screening.best_match_score",
		metric.WithDescription("Best similarity score per screened transaction"),
		metric.WithExplicitBucketBoundaries(50, 60, 70, 75, 80, 85, 90, 95, 100))
	if err != nil {
		return nil, fmt.Errorf("screening.best_match_score: %w", err)
	}
	duration, err := meter.Float64Histogram("screening.duration",
		metric.WithDescription("Time spent scoring one transaction against the snapshot"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("screening.duration: %w", err)
	}
	return &instruments{transactions: transactions, bestScore: bestScore, duration: duration}, nil
}

func (i *instruments) outcome(ctx context.Context, outcome string, extra ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{attribute.String("outcome", outcome)}, extra...)
	i.transactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (i *instruments) scored(ctx context.Context, score, seconds float64) {
	i.bestScore.Record(ctx, score)
	i.duration.Record(ctx, seconds)
}
