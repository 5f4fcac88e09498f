// Package generator publishes synthetic load onto the bus: periodic
// per-topic streams, on-demand bursts, named scenarios and a health report.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/records"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/metrics"
)

const (
	MaxBurst = 1000

	healthTask   = "health-report"
	healthSource = "load-generator"
)

// Trigger labels
const (
	TriggerStream   = "stream"
	TriggerBurst    = "burst"
	TriggerScenario = "scenario"
	TriggerHealth   = "health"
)

// Scenario names
const (
	ScenarioBudgetCrisis     = "budget-crisis"
	ScenarioMarketVolatility = "market-volatility"
	ScenarioComplianceBreach = "compliance-breach"
	ScenarioSanctionsHit     = "sanctions-hit"
)

// Priority orders stream startup
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{PriorityHigh: 0, PriorityNormal: 1, PriorityLow: 2}

// Publisher is the slice of the bus the generator needs
type Publisher interface {
	Publish(ctx context.Context, topic stream.Topic, key string, payload any) error
}

type StreamConfig struct {
	Name      string
	Topic     stream.Topic
	Interval  time.Duration
	BatchSize int
	Priority  Priority
	Enabled   bool
}

type Config struct {
	Streams        []StreamConfig
	HealthInterval time.Duration
	// BurstRPS throttles bursts; zero means unthrottled
	BurstRPS float64
}

// DefaultStreams mirrors the production cadence per topic
func DefaultStreams() []StreamConfig {
	return []StreamConfig{
		{Name: "transactions", Topic: stream.TopicTransactions, Interval: 2 * time.Second, BatchSize: 5, Priority: PriorityHigh, Enabled: true},
		{Name: "budget", Topic: stream.TopicBudgetUpdates, Interval: 5 * time.Second, BatchSize: 3, Priority: PriorityNormal, Enabled: true},
		{Name: "projects", Topic: stream.TopicProjectUpdates, Interval: 10 * time.Second, BatchSize: 2, Priority: PriorityNormal, Enabled: true},
		{Name: "compliance", Topic: stream.TopicComplianceAlerts, Interval: 15 * time.Second, BatchSize: 1, Priority: PriorityHigh, Enabled: true},
		{Name: "risk", Topic: stream.TopicRiskEvents, Interval: 8 * time.Second, BatchSize: 2, Priority: PriorityHigh, Enabled: true},
	}
}

func DefaultConfig() Config {
	return Config{
		Streams:        DefaultStreams(),
		HealthInterval: 30 * time.Second,
	}
}

// Stats is a point-in-time view of generator activity
type Stats struct {
	Running       bool             `json:"running"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Published     int64            `json:"published"`
	Errors        int64            `json:"errors"`
	PerTopic      map[string]int64 `json:"per_topic"`
	ActiveStreams []string         `json:"active_streams"`
}

// ScenarioResult reports what a scenario published
type ScenarioResult struct {
	Scenario  string         `json:"scenario"`
	Published int            `json:"published"`
	PerTopic  map[string]int `json:"per_topic"`
}

// Generator is safe for concurrent use
type Generator struct {
	config    Config
	publisher Publisher
	factory   *Factory
	scheduler *Scheduler
	limiter   *rate.Limiter
	clock     clockwork.Clock
	logger    *zap.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	perTopic  map[stream.Topic]int64

	published atomic.Int64
	errors    atomic.Int64
}

func New(config Config, publisher Publisher, factory *Factory, clock clockwork.Clock, logger *zap.Logger) (*Generator, error) {
	if publisher == nil || factory == nil {
		return nil, fmt.Errorf("publisher and factory are required")
	}
	for _, s := range config.Streams {
		if !s.Enabled {
			continue
		}
		if _, ok := recordTopics[s.Topic]; !ok {
			return nil, errors.NewValidationError("INVALID_STREAM", fmt.Sprintf("stream %s: no generator for topic %s", s.Name, s.Topic))
		}
		if s.Interval <= 0 || s.BatchSize <= 0 || s.BatchSize > MaxBurst {
			return nil, errors.NewValidationError("INVALID_STREAM", fmt.Sprintf("stream %s: interval and batch size must be positive", s.Name))
		}
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = DefaultConfig().HealthInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Generator{
		config:    config,
		publisher: publisher,
		factory:   factory,
		scheduler: NewScheduler(clock, logger),
		clock:     clock,
		logger:    logger.Named("generator"),
		perTopic:  make(map[stream.Topic]int64),
	}
	if config.BurstRPS > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(config.BurstRPS), int(config.BurstRPS)+1)
	}
	return g, nil
}

// recordTopics are the topics the factory can produce records for
var recordTopics = map[stream.Topic]struct{}{
	stream.TopicTransactions:     {},
	stream.TopicBudgetUpdates:    {},
	stream.TopicProjectUpdates:   {},
	stream.TopicComplianceAlerts: {},
	stream.TopicRiskEvents:       {},
}

// Start schedules every enabled stream, high priority first, and the
// health report
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return errors.NewValidationError("ALREADY_RUNNING", "generator already started")
	}
	g.running = true
	g.startedAt = g.clock.Now()
	g.mu.Unlock()

	streams := append([]StreamConfig(nil), g.config.Streams...)
	sort.SliceStable(streams, func(i, j int) bool {
		return priorityRank[streams[i].Priority] < priorityRank[streams[j].Priority]
	})

	for _, s := range streams {
		if !s.Enabled {
			continue
		}
		s := s
		if err := g.scheduler.Every(ctx, "stream:"+s.Name, s.Interval, func(ctx context.Context) {
			g.runStream(ctx, s)
		}); err != nil {
			g.scheduler.Stop()
			g.setStopped()
			return err
		}
		g.logger.Info("stream started",
			zap.String("stream", s.Name),
			zap.String("topic", s.Topic.String()),
			zap.Duration("interval", s.Interval),
			zap.Int("batch_size", s.BatchSize),
			zap.String("priority", string(s.Priority)))
	}

	if err := g.scheduler.Every(ctx, healthTask, g.config.HealthInterval, g.publishHealth); err != nil {
		g.scheduler.Stop()
		g.setStopped()
		return err
	}

	g.logger.Info("load generator started", zap.Int("tasks", len(g.scheduler.Names())))
	return nil
}

// Stop cancels all scheduled tasks and waits for them. Nothing is
// published by a scheduled task after Stop returns.
func (g *Generator) Stop() {
	g.scheduler.Stop()
	if g.setStopped() {
		g.logger.Info("load generator stopped",
			zap.Int64("published", g.published.Load()),
			zap.Int64("errors", g.errors.Load()))
	}
}

func (g *Generator) setStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	was := g.running
	g.running = false
	return was
}

func (g *Generator) runStream(ctx context.Context, s StreamConfig) {
	for i := 0; i < s.BatchSize; i++ {
		if ctx.Err() != nil {
			return
		}
		g.publishRecord(ctx, s.Topic, TriggerStream)
	}
}

// TriggerBurst publishes count records on topic immediately, throttled by
// BurstRPS when set. Returns how many were accepted.
func (g *Generator) TriggerBurst(ctx context.Context, topic stream.Topic, count int) (int, error) {
	if count < 1 || count > MaxBurst {
		return 0, errors.NewValidationError("INVALID_BURST", fmt.Sprintf("burst count must be between 1 and %d", MaxBurst))
	}
	if _, ok := recordTopics[topic]; !ok {
		return 0, errors.NewValidationError("INVALID_TOPIC", "no generator for topic "+topic.String())
	}

	sent := 0
	for i := 0; i < count; i++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return sent, fmt.Errorf("burst interrupted after %d: %w", sent, err)
			}
		}
		if g.publishRecord(ctx, topic, TriggerBurst) {
			sent++
		}
	}

	g.logger.Info("burst published",
		zap.String("topic", topic.String()),
		zap.Int("requested", count),
		zap.Int("published", sent))
	return sent, nil
}

// NormalizeScenario folds case, spaces and underscores:
// "Budget Crisis", "budget_crisis" and "budget-crisis" are the same name.
func NormalizeScenario(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	return strings.Join(fields, "-")
}

// Scenarios lists the supported scenario names
func Scenarios() []string {
	return []string{ScenarioBudgetCrisis, ScenarioMarketVolatility, ScenarioComplianceBreach, ScenarioSanctionsHit}
}

type scenarioStep struct {
	topic stream.Topic
	build func() (string, any)
}

func (g *Generator) scenario(name string) ([]scenarioStep, bool) {
	f := g.factory
	repeat := func(n int, step scenarioStep) []scenarioStep {
		out := make([]scenarioStep, n)
		for i := range out {
			out[i] = step
		}
		return out
	}

	switch name {
	case ScenarioBudgetCrisis:
		return repeat(5, scenarioStep{stream.TopicBudgetUpdates, func() (string, any) {
			b := f.BudgetCrisis()
			return b.ID, b
		}}), true
	case ScenarioMarketVolatility:
		steps := repeat(3, scenarioStep{stream.TopicRiskEvents, func() (string, any) {
			r := f.HighRisk()
			return r.ID, r
		}})
		return append(steps, repeat(3, scenarioStep{stream.TopicTransactions, func() (string, any) {
			tx := f.LargeTransaction()
			return tx.ID, tx
		}})...), true
	case ScenarioComplianceBreach:
		return repeat(2, scenarioStep{stream.TopicComplianceAlerts, func() (string, any) {
			c := f.CriticalCompliance()
			return c.ID, c
		}}), true
	case ScenarioSanctionsHit:
		return repeat(3, scenarioStep{stream.TopicTransactions, func() (string, any) {
			tx := f.SanctionedTransaction()
			return tx.ID, tx
		}}), true
	default:
		return nil, false
	}
}

// SimulateScenario publishes the records of a named scenario
func (g *Generator) SimulateScenario(ctx context.Context, name string) (ScenarioResult, error) {
	normalized := NormalizeScenario(name)
	steps, ok := g.scenario(normalized)
	if !ok {
		return ScenarioResult{}, errors.NewValidationError("UNKNOWN_SCENARIO",
			fmt.Sprintf("unknown scenario %q, expected one of %s", name, strings.Join(Scenarios(), ", ")))
	}

	result := ScenarioResult{Scenario: normalized, PerTopic: make(map[string]int)}
	for _, step := range steps {
		key, payload := step.build()
		if g.publish(ctx, step.topic, key, payload, TriggerScenario) {
			result.Published++
			result.PerTopic[step.topic.String()]++
		}
	}

	g.logger.Info("scenario simulated",
		zap.String("scenario", normalized),
		zap.Int("published", result.Published))
	return result, nil
}

func (g *Generator) publishRecord(ctx context.Context, topic stream.Topic, trigger string) bool {
	key, payload := g.record(topic)
	return g.publish(ctx, topic, key, payload, trigger)
}

func (g *Generator) record(topic stream.Topic) (string, any) {
	switch topic {
	case stream.TopicTransactions:
		tx := g.factory.Transaction()
		return tx.ID, tx
	case stream.TopicBudgetUpdates:
		b := g.factory.Budget()
		return b.ID, b
	case stream.TopicProjectUpdates:
		p := g.factory.Project()
		return p.ID, p
	case stream.TopicComplianceAlerts:
		c := g.factory.Compliance()
		return c.ID, c
	default:
		r := g.factory.Risk()
		return r.ID, r
	}
}

func (g *Generator) publish(ctx context.Context, topic stream.Topic, key string, payload any, trigger string) bool {
	if err := g.publisher.Publish(ctx, topic, key, payload); err != nil {
		g.errors.Add(1)
		metrics.GeneratorErrorsTotal.WithLabelValues(topic.String()).Inc()
		g.logger.Warn("publish failed",
			zap.String("topic", topic.String()),
			zap.String("trigger", trigger),
			zap.Error(err))
		return false
	}

	g.published.Add(1)
	g.mu.Lock()
	g.perTopic[topic]++
	g.mu.Unlock()
	metrics.GeneratorPublishedTotal.WithLabelValues(topic.String(), trigger).Inc()
	return true
}

func (g *Generator) publishHealth(ctx context.Context) {
	stats := g.Stats()
	report := records.HealthReport{
		Source:            healthSource,
		UptimeSeconds:     stats.UptimeSeconds,
		MessagesPublished: stats.Published,
		Errors:            stats.Errors,
		PerTopic:          stats.PerTopic,
		ActiveStreams:     stats.ActiveStreams,
		Timestamp:         g.clock.Now().UTC(),
	}
	g.publish(ctx, stream.TopicSystemMetrics, healthSource, report, TriggerHealth)
}

func (g *Generator) Stats() Stats {
	g.mu.Lock()
	running := g.running
	startedAt := g.startedAt
	perTopic := make(map[string]int64, len(g.perTopic))
	for t, n := range g.perTopic {
		perTopic[t.String()] = n
	}
	g.mu.Unlock()

	var uptime float64
	if running {
		uptime = g.clock.Since(startedAt).Seconds()
	}

	active := make([]string, 0)
	for _, name := range g.scheduler.Names() {
		if strings.HasPrefix(name, "stream:") {
			active = append(active, strings.TrimPrefix(name, "stream:"))
		}
	}

	return Stats{
		Running:       running,
		UptimeSeconds: uptime,
		Published:     g.published.Load(),
		Errors:        g.errors.Load(),
		PerTopic:      perTopic,
		ActiveStreams: active,
	}
}
