// Package registry runs the sanctions registry poll loop and publishes each
// fetched snapshot on the bus.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/metrics"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
)

// SnapshotKey is the envelope key of every published snapshot
const SnapshotKey = "registry-snapshot"

// Fetcher retrieves the current registry contents
type Fetcher interface {
	FetchEntities(ctx context.Context) ([]sanctions.Entity, error)
	Source() string
}

// Publisher is the slice of the bus the producer needs
type Publisher interface {
	Publish(ctx context.Context, topic stream.Topic, key string, payload any) error
}

// Recorder is the slice of the hub the producer needs
type Recorder interface {
	Record(ctx context.Context, category hub.Category, payload any) (hub.Notification, error)
}

type Config struct {
	Interval time.Duration
	Backoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
		Backoff:  time.Minute,
	}
}

// RefreshSummary is recorded in the hub after every successful refresh
type RefreshSummary struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	Source     string    `json:"source"`
	Entities   int       `json:"entities"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Producer polls the registry and publishes snapshots on sanctions-data
type Producer struct {
	config    Config
	fetcher   Fetcher
	publisher Publisher
	recorder  Recorder
	clock     clockwork.Clock
	logger    *zap.Logger

	pollMu      sync.Mutex
	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRefresh time.Time
	lastSize    int
}

func NewProducer(config Config, fetcher Fetcher, publisher Publisher, recorder Recorder, clock clockwork.Clock, logger *zap.Logger) (*Producer, error) {
	if fetcher == nil || publisher == nil {
		return nil, fmt.Errorf("fetcher and publisher are required")
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Backoff <= 0 {
		config.Backoff = defaults.Backoff
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Producer{
		config:    config,
		fetcher:   fetcher,
		publisher: publisher,
		recorder:  recorder,
		clock:     clock,
		logger:    logger.Named("registry_producer"),
	}, nil
}

// Start launches the poll loop. The first poll runs immediately.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.NewValidationError("ALREADY_RUNNING", "registry producer already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.run(loopCtx)

	p.logger.Info("registry producer started",
		zap.String("source", p.fetcher.Source()),
		zap.Duration("interval", p.config.Interval),
		zap.Duration("backoff", p.config.Backoff))
	return nil
}

// Stop halts the loop and waits for it. A publish already in flight
// completes first.
func (p *Producer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("registry producer stopped")
}

func (p *Producer) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		wait := p.config.Interval
		if err := p.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = p.config.Backoff
			p.logger.Error("registry refresh failed",
				zap.Duration("retry_in", wait),
				zap.Error(err))
		}

		select {
		case <-p.clock.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce fetches the registry and publishes the result as one snapshot.
// An empty fetch is published too: snapshots replace, never merge.
func (p *Producer) PollOnce(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	start := p.clock.Now()
	entities, err := p.fetcher.FetchEntities(ctx)
	metrics.RegistryFetchDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		metrics.RegistryPollsTotal.WithLabelValues("fetch_error").Inc()
		return fmt.Errorf("fetch registry: %w", err)
	}

	snapshot := sanctions.NewSnapshot(p.fetcher.Source(), p.clock.Now(), entities)

	// detach so Stop never cuts a publish in half
	publishCtx := context.WithoutCancel(ctx)
	if err := p.publisher.Publish(publishCtx, stream.TopicSanctionsData, SnapshotKey, snapshot); err != nil {
		metrics.RegistryPollsTotal.WithLabelValues("publish_error").Inc()
		return fmt.Errorf("publish snapshot: %w", err)
	}

	if p.recorder != nil {
		summary := RefreshSummary{
			SnapshotID: snapshot.ID,
			Source:     snapshot.Source,
			Entities:   snapshot.Len(),
			FetchedAt:  snapshot.FetchedAt,
		}
		if _, err := p.recorder.Record(publishCtx, hub.CategorySanctions, summary); err != nil {
			p.logger.Warn("failed to record refresh summary", zap.Error(err))
		}
	}

	p.mu.Lock()
	p.lastRefresh = snapshot.FetchedAt
	p.lastSize = snapshot.Len()
	p.mu.Unlock()

	metrics.RegistryPollsTotal.WithLabelValues("success").Inc()
	p.logger.Info("registry snapshot published",
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.Int("entities", snapshot.Len()),
		zap.Int("dropped", len(entities)-snapshot.Len()))
	return nil
}

// LastRefresh returns the time of the last published snapshot and its
// size; zero before the first success.
func (p *Producer) LastRefresh() (time.Time, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefresh, p.lastSize
}
