// Package screening scores transaction counterparties against the current
// sanctions snapshot and raises alerts for matches.
package screening

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/alert"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/events"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/telemetry"
	"github.com/Asif90988/banking-dashboard-streaming/internal/metrics"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
)

const alertSource = "sanctions-screening"

// Skip reasons
const (
	SkipMissingCounterparty = "missing_counterparty"
	SkipEmptyRegistry       = "empty_registry"
	SkipMalformed           = "malformed"
)

// Subscriber is the slice of the bus the matcher consumes from
type Subscriber interface {
	Subscribe(ctx context.Context, name string, topics []stream.Topic, handler events.Handler) error
}

// Publisher is the slice of the bus the matcher publishes to
type Publisher interface {
	Publish(ctx context.Context, topic stream.Topic, key string, payload any) error
}

// AlertSink is the slice of the hub the matcher reports to
type AlertSink interface {
	Record(ctx context.Context, category hub.Category, payload any) (hub.Notification, error)
	SendAlert(ctx context.Context, severity alert.Severity, message, source string) (alert.Alert, error)
}

type Config struct {
	// Threshold is the minimum best score that flags a transaction
	Threshold float64
	// NearMissThreshold enables the near-miss audit for scores in
	// [NearMissThreshold, Threshold). Zero disables it.
	NearMissThreshold float64
	// Meter receives the OTLP screening instruments. Nil uses the global provider.
	Meter metric.Meter
}

func DefaultConfig() Config {
	return Config{Threshold: 90}
}

// Result describes one screening pass
type Result struct {
	TransactionID string                        `json:"transaction_id"`
	Screened      bool                          `json:"screened"`
	SkipReason    string                        `json:"skip_reason,omitempty"`
	BestMatch     *sanctions.Entity             `json:"best_match,omitempty"`
	Score         float64                       `json:"score"`
	NearMiss      bool                          `json:"near_miss,omitempty"`
	Flagged       *sanctions.FlaggedTransaction `json:"flagged,omitempty"`
}

// Matcher holds the registry snapshot used for scoring. The snapshot is
// replaced atomically; every scoring pass reads exactly one snapshot.
type Matcher struct {
	config    Config
	snapshot  atomic.Pointer[sanctions.Snapshot]
	publisher Publisher
	sink      AlertSink
	inst      *instruments
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewMatcher(config Config, publisher Publisher, sink AlertSink, clock clockwork.Clock, logger *zap.Logger) (*Matcher, error) {
	if publisher == nil || sink == nil {
		return nil, fmt.Errorf("publisher and alert sink are required")
	}
	if config.Threshold <= 0 || config.Threshold > 100 {
		return nil, fmt.Errorf("threshold must be in (0, 100], got %v", config.Threshold)
	}
	if config.NearMissThreshold < 0 || config.NearMissThreshold > config.Threshold {
		return nil, fmt.Errorf("near-miss threshold must be in [0, %v], got %v", config.Threshold, config.NearMissThreshold)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := config.Meter
	if meter == nil {
		meter = telemetry.Meter("screening")
	}
	inst, err := newInstruments(meter)
	if err != nil {
		return nil, fmt.Errorf("creating screening instruments: %w", err)
	}

	return &Matcher{
		config:    config,
		publisher: publisher,
		sink:      sink,
		inst:      inst,
		clock:     clock,
		logger:    logger.Named("matcher"),
	}, nil
}

// Start subscribes to registry snapshots as side input and to transactions
// as the trigger. The two subscriptions are independent so a large snapshot
// never sits behind transaction traffic.
func (m *Matcher) Start(ctx context.Context, sub Subscriber) error {
	if err := sub.Subscribe(ctx, "screening-snapshots", []stream.Topic{stream.TopicSanctionsData}, m.HandleSnapshot); err != nil {
		return fmt.Errorf("subscribe to %s: %w", stream.TopicSanctionsData, err)
	}
	if err := sub.Subscribe(ctx, "screening-transactions", []stream.Topic{stream.TopicTransactions}, m.HandleTransaction); err != nil {
		return fmt.Errorf("subscribe to %s: %w", stream.TopicTransactions, err)
	}
	m.logger.Info("matcher started",
		zap.Float64("threshold", m.config.Threshold),
		zap.Float64("near_miss_threshold", m.config.NearMissThreshold))
	return nil
}

// ReplaceSnapshot swaps in a new snapshot. Nil clears it.
func (m *Matcher) ReplaceSnapshot(s *sanctions.Snapshot) {
	m.snapshot.Store(s)
	metrics.RegistrySnapshotSize.Set(float64(s.Len()))
}

// Snapshot returns the snapshot currently used for scoring
func (m *Matcher) Snapshot() *sanctions.Snapshot {
	return m.snapshot.Load()
}

// HandleSnapshot replaces the snapshot from a sanctions-data envelope.
// Malformed envelopes are logged and the previous snapshot is kept.
func (m *Matcher) HandleSnapshot(ctx context.Context, env stream.Envelope) error {
	var snap sanctions.Snapshot
	if err := env.Decode(&snap); err != nil {
		m.logger.Warn("ignoring malformed registry snapshot",
			zap.String("envelope_id", env.ID.String()),
			zap.Error(err))
		return nil
	}

	// re-validate: the envelope may come from another producer
	fresh := sanctions.NewSnapshot(snap.Source, snap.FetchedAt, snap.Entities)
	fresh.ID = snap.ID
	m.ReplaceSnapshot(fresh)

	m.logger.Info("registry snapshot replaced",
		zap.String("snapshot_id", fresh.ID.String()),
		zap.Int("entities", fresh.Len()))
	return nil
}

// HandleTransaction screens one transaction-stream envelope
func (m *Matcher) HandleTransaction(ctx context.Context, env stream.Envelope) error {
	var tx sanctions.Transaction
	if err := env.Decode(&tx); err != nil {
		metrics.TransactionsSkipped.WithLabelValues(SkipMalformed).Inc()
		m.logger.Warn("skipping malformed transaction",
			zap.String("envelope_id", env.ID.String()),
			zap.Error(err))
		return nil
	}
	if tx.ID == "" {
		tx.ID = env.Key
	}

	_, err := m.Screen(ctx, tx)
	return err
}

// Screen scores tx against the current snapshot and, when the best score
// reaches the threshold, publishes a flagged transaction, records it and
// raises a critical alert. Only the best match counts; on ties the first
// entity to reach the top score wins.
func (m *Matcher) Screen(ctx context.Context, tx sanctions.Transaction) (Result, error) {
	ctx, span := telemetry.Tracer("screening").Start(ctx, "screening.screen")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", tx.ID))

	result := Result{TransactionID: tx.ID}

	if !tx.HasCounterparty() {
		result.SkipReason = SkipMissingCounterparty
		metrics.TransactionsSkipped.WithLabelValues(SkipMissingCounterparty).Inc()
		m.inst.outcome(ctx, OutcomeSkipped, attribute.String("reason", SkipMissingCounterparty))
		m.logger.Info("skipping transaction without counterparty",
			zap.String("transaction_id", tx.ID))
		return result, nil
	}

	snap := m.snapshot.Load()
	if snap.Empty() {
		result.SkipReason = SkipEmptyRegistry
		metrics.TransactionsSkipped.WithLabelValues(SkipEmptyRegistry).Inc()
		m.inst.outcome(ctx, OutcomeSkipped, attribute.String("reason", SkipEmptyRegistry))
		m.logger.Warn("registry snapshot empty, transaction not screened",
			zap.String("transaction_id", tx.ID))
		return result, nil
	}

	start := m.clock.Now()
	bestIdx, bestScore := -1, 0.0
	for i := range snap.Entities {
		score := Similarity(tx.Counterparty, snap.Entities[i].Name)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	elapsed := m.clock.Since(start).Seconds()
	metrics.ScreeningDuration.Observe(elapsed)
	metrics.TransactionsScreened.Inc()
	metrics.BestMatchScore.Observe(bestScore)
	m.inst.scored(ctx, bestScore, elapsed)

	result.Screened = true
	result.Score = bestScore
	span.SetAttributes(attribute.Float64("screening.best_score", bestScore))
	if bestIdx < 0 {
		m.inst.outcome(ctx, OutcomeClear)
		return result, nil
	}

	best := snap.Entities[bestIdx]
	result.BestMatch = &best

	if bestScore < m.config.Threshold {
		if m.config.NearMissThreshold > 0 && bestScore >= m.config.NearMissThreshold {
			result.NearMiss = true
			metrics.NearMisses.Inc()
			m.inst.outcome(ctx, OutcomeNearMiss)
			telemetry.WithTrace(ctx, m.logger).Info("near miss",
				zap.String("transaction_id", tx.ID),
				zap.String("counterparty", tx.Counterparty),
				zap.String("entity_id", best.ID),
				zap.String("entity_name", best.Name),
				zap.Float64("score", bestScore))
			return result, nil
		}
		m.inst.outcome(ctx, OutcomeClear)
		return result, nil
	}

	flagged := sanctions.NewFlaggedTransaction(tx, best, bestScore, m.clock.Now())
	result.Flagged = &flagged
	metrics.TransactionsFlagged.Inc()
	m.inst.outcome(ctx, OutcomeFlagged)
	span.SetAttributes(attribute.Bool("screening.flagged", true))

	telemetry.WithTrace(ctx, m.logger).Warn("transaction flagged",
		zap.String("transaction_id", tx.ID),
		zap.String("counterparty", tx.Counterparty),
		zap.String("entity_id", best.ID),
		zap.String("entity_name", best.Name),
		zap.Float64("score", bestScore))

	err := m.report(ctx, flagged)
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return result, err
}

// report fans a flag out to the bus, the hub history and the alert feed.
// Each step runs even when an earlier one fails.
func (m *Matcher) report(ctx context.Context, flagged sanctions.FlaggedTransaction) error {
	var errs []error

	if err := m.publisher.Publish(ctx, stream.TopicFlaggedTransactions, flagged.Transaction.ID, flagged); err != nil {
		errs = append(errs, fmt.Errorf("publish flagged transaction: %w", err))
	}
	if _, err := m.sink.Record(ctx, hub.CategoryFlagged, flagged); err != nil {
		errs = append(errs, fmt.Errorf("record flagged transaction: %w", err))
	}

	message := fmt.Sprintf("Sanctions match: %s matched transaction %s (score %.2f)",
		flagged.Entity.Name, flagged.Transaction.ID, flagged.Score)
	if _, err := m.sink.SendAlert(ctx, alert.SeverityCritical, message, alertSource); err != nil {
		errs = append(errs, fmt.Errorf("send alert: %w", err))
	}

	return stderrors.Join(errs...)
}
