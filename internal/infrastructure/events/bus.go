package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/metrics"
)

// Mode is the bus connection state. It is decided once by Start.
type Mode int32

const (
	ModeUninitialized Mode = iota
	ModeConnecting
	ModeConnected
	ModeSimulation
	// ModeUnavailable is terminal: no broker and simulation fallback disabled
	ModeUnavailable
)

func (m Mode) String() string {
	switch m {
	case ModeUninitialized:
		return "uninitialized"
	case ModeConnecting:
		return "connecting"
	case ModeConnected:
		return "connected"
	case ModeSimulation:
		return "simulation"
	case ModeUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// Handler processes one envelope. Returned errors are counted and logged;
// they never stop the subscription.
type Handler func(ctx context.Context, env stream.Envelope) error

// BusConfig configures the bus
type BusConfig struct {
	ConnectTimeout     time.Duration
	HealthInterval     time.Duration
	SimulationFallback bool
	// Topics are provisioned at startup in addition to the well-known set
	Topics []stream.Topic
	// DeadLetterCap bounds retained handler failures; zero means 256
	DeadLetterCap int
}

// DefaultBusConfig returns the startup defaults
func DefaultBusConfig() BusConfig {
	return BusConfig{
		ConnectTimeout:     3 * time.Second,
		HealthInterval:     30 * time.Second,
		SimulationFallback: true,
	}
}

// Bus is the topic bus. It runs on the real broker transport when reachable
// at startup and on the simulated transport otherwise, with the same topic
// contract in both modes.
type Bus struct {
	config BusConfig
	real   MessageTransport
	sim    MessageTransport
	logger *zap.Logger
	clock  clockwork.Clock
	stats  *stream.Stats
	dlq    *deadLetterQueue

	mode   atomic.Int32
	active atomic.Pointer[transportRef]

	startOnce sync.Once
	startErr  error

	mu   sync.Mutex
	subs []Subscription

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type transportRef struct {
	MessageTransport
}

// NewBus creates a bus. broker may be nil when no broker is configured.
func NewBus(config BusConfig, broker, sim MessageTransport, logger *zap.Logger, clock clockwork.Clock) (*Bus, error) {
	if sim == nil {
		return nil, fmt.Errorf("simulated transport is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	defaults := DefaultBusConfig()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = defaults.HealthInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Bus{
		config: config,
		real:   broker,
		sim:    sim,
		logger: logger.Named("bus"),
		clock:  clock,
		stats:  stream.NewStats(),
		dlq:    newDeadLetterQueue(config.DeadLetterCap),
		runCtx: runCtx,
		cancel: cancel,
	}, nil
}

// Start probes the broker once and settles the mode. Later calls return the
// first result.
func (b *Bus) Start(ctx context.Context) error {
	b.startOnce.Do(func() {
		b.startErr = b.start(ctx)
	})
	return b.startErr
}

func (b *Bus) start(ctx context.Context) error {
	b.setMode(ModeConnecting)
	topics := stream.MergeTopics(stream.WellKnownTopics(), b.config.Topics...)

	if b.real != nil {
		err := b.probe(ctx, topics)
		if err == nil {
			b.active.Store(&transportRef{b.real})
			b.stats.SetConnected(true)
			b.setMode(ModeConnected)
			b.logger.Info("connected to broker",
				zap.String("transport", b.real.Name()),
				zap.Int("topics", len(topics)))
			b.startHealthLoop()
			return nil
		}

		if !b.config.SimulationFallback {
			b.setMode(ModeUnavailable)
			b.logger.Error("broker unreachable and simulation fallback disabled",
				zap.String("transport", b.real.Name()),
				zap.Error(err))
			return errors.NewTransportError(b.real.Name(), "broker unreachable").WithCause(err)
		}

		b.logger.Warn("broker unreachable, switching to simulation mode",
			zap.String("transport", b.real.Name()),
			zap.Duration("probe_timeout", b.config.ConnectTimeout),
			zap.Error(err))
	} else {
		b.logger.Info("no broker configured, using simulation mode")
	}

	if err := b.sim.EnsureTopics(ctx, topics); err != nil {
		b.setMode(ModeUnavailable)
		return errors.NewTransportError(b.sim.Name(), "provision topics").WithCause(err)
	}
	b.active.Store(&transportRef{b.sim})
	b.stats.SetSimulation(true)
	b.setMode(ModeSimulation)
	b.startHealthLoop()
	return nil
}

func (b *Bus) probe(ctx context.Context, topics []stream.Topic) error {
	probeCtx, cancel := context.WithTimeout(ctx, b.config.ConnectTimeout)
	defer cancel()

	if err := b.real.Ping(probeCtx); err != nil {
		return err
	}
	return b.real.EnsureTopics(probeCtx, topics)
}

func (b *Bus) setMode(m Mode) {
	b.mode.Store(int32(m))
	metrics.BusSimulationMode.Set(metrics.BoolGauge(m == ModeSimulation))
}

// Mode returns the current connection state
func (b *Bus) Mode() Mode {
	return Mode(b.mode.Load())
}

// Stats returns a snapshot of the bus counters
func (b *Bus) Stats() stream.StatsSnapshot {
	return b.stats.Snapshot()
}

func (b *Bus) transport() (MessageTransport, error) {
	ref := b.active.Load()
	if ref == nil {
		switch b.Mode() {
		case ModeUnavailable:
			return nil, errors.NewTransportError("bus", "broker unavailable and simulation disabled")
		default:
			return nil, errors.NewUnavailableError("bus not started")
		}
	}
	return ref.MessageTransport, nil
}

// Publish stamps payload into an envelope and hands it to the active
// transport. Failures are counted and returned; the bus never retries.
func (b *Bus) Publish(ctx context.Context, topic stream.Topic, key string, payload any) error {
	now := b.clock.Now()

	t, err := b.transport()
	if err != nil {
		b.recordPublishError(topic, err)
		return err
	}

	env, err := stream.NewEnvelope(topic, key, payload, now)
	if err != nil {
		b.recordPublishError(topic, err)
		return errors.NewValidationError("INVALID_PAYLOAD", err.Error())
	}

	if err := t.Publish(ctx, env); err != nil {
		b.recordPublishError(topic, err)
		if errors.IsType(err, errors.ErrorTypeTransport) {
			return err
		}
		return errors.NewTransportError(t.Name(), "publish to "+topic.String()).WithCause(err)
	}

	b.stats.RecordProduced(now)
	metrics.BusPublishedTotal.WithLabelValues(topic.String(), b.Mode().String()).Inc()
	return nil
}

func (b *Bus) recordPublishError(topic stream.Topic, err error) {
	b.stats.RecordError(b.clock.Now())
	metrics.BusErrorsTotal.WithLabelValues("publish").Inc()
	b.logger.Warn("publish failed",
		zap.String("topic", topic.String()),
		zap.Error(err))
}

// Subscribe provisions the well-known and requested topics, then registers
// handler. Each subscription has one in-order worker; name identifies the
// subscriber so that distinct names each receive every envelope.
func (b *Bus) Subscribe(ctx context.Context, name string, topics []stream.Topic, handler Handler) error {
	if handler == nil {
		return errors.NewValidationError("NO_HANDLER", "handler is required")
	}
	if len(topics) == 0 {
		return errors.NewValidationError("NO_TOPICS", "at least one topic is required")
	}

	t, err := b.transport()
	if err != nil {
		return err
	}

	if err := t.EnsureTopics(ctx, stream.MergeTopics(stream.WellKnownTopics(), topics...)); err != nil {
		b.stats.RecordError(b.clock.Now())
		metrics.BusErrorsTotal.WithLabelValues("subscribe").Inc()
		return errors.NewTransportError(t.Name(), "provision topics").WithCause(err)
	}

	sub, err := t.Subscribe(ctx, name, topics, func(env stream.Envelope) {
		b.dispatch(name, env, handler)
	})
	if err != nil {
		b.stats.RecordError(b.clock.Now())
		metrics.BusErrorsTotal.WithLabelValues("subscribe").Inc()
		return err
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Info("subscribed",
		zap.String("subscriber", name),
		zap.Int("topics", len(topics)),
		zap.String("mode", b.Mode().String()))
	return nil
}

func (b *Bus) dispatch(name string, env stream.Envelope, handler Handler) {
	b.stats.RecordConsumed(b.clock.Now())
	metrics.BusConsumedTotal.WithLabelValues(env.Topic.String()).Inc()

	defer func() {
		if r := recover(); r != nil {
			b.stats.RecordError(b.clock.Now())
			metrics.BusErrorsTotal.WithLabelValues("handler").Inc()
			b.logger.Error("handler panicked",
				zap.String("subscriber", name),
				zap.String("topic", env.Topic.String()),
				zap.String("envelope_id", env.ID.String()),
				zap.Any("panic", r))
			b.dlq.add(DeadLetter{
				Subscriber: name,
				Envelope:   env,
				Reason:     fmt.Sprint(r),
				Panicked:   true,
				FailedAt:   b.clock.Now().UTC(),
			})
		}
	}()

	if err := handler(b.runCtx, env); err != nil {
		b.stats.RecordError(b.clock.Now())
		metrics.BusErrorsTotal.WithLabelValues("handler").Inc()
		b.logger.Warn("handler failed",
			zap.String("subscriber", name),
			zap.String("topic", env.Topic.String()),
			zap.String("envelope_id", env.ID.String()),
			zap.Error(err))
		b.dlq.add(DeadLetter{
			Subscriber: name,
			Envelope:   env,
			Reason:     err.Error(),
			FailedAt:   b.clock.Now().UTC(),
		})
	}
}

// DeadLetters returns up to limit recent handler failures, newest last
func (b *Bus) DeadLetters(limit int) []DeadLetter {
	return b.dlq.recent(limit)
}

func (b *Bus) startHealthLoop() {
	b.wg.Add(1)
	go b.healthLoop()
}

// healthLoop reports connectivity and counters. It never changes the mode.
func (b *Bus) healthLoop() {
	defer b.wg.Done()

	ticker := b.clock.NewTicker(b.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			b.reportHealth()
		case <-b.runCtx.Done():
			return
		}
	}
}

func (b *Bus) reportHealth() {
	t, err := b.transport()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.runCtx, b.config.ConnectTimeout)
	defer cancel()

	snap := b.stats.Snapshot()
	fields := []zap.Field{
		zap.String("mode", b.Mode().String()),
		zap.String("transport", t.Name()),
		zap.Int64("produced", snap.MessagesProduced),
		zap.Int64("consumed", snap.MessagesConsumed),
		zap.Int64("errors", snap.Errors),
		zap.Int64("dead_letters", b.dlq.total()),
	}
	if err := t.Ping(ctx); err != nil {
		b.logger.Warn("transport health check failed", append(fields, zap.Error(err))...)
		return
	}
	b.logger.Info("bus health", fields...)
}

// Close stops subscriptions, the health loop and both transports
func (b *Bus) Close() error {
	var firstErr error
	b.closeOnce.Do(func() {
		b.cancel()
		b.wg.Wait()

		b.mu.Lock()
		subs := b.subs
		b.subs = nil
		b.mu.Unlock()

		for _, s := range subs {
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}

		if b.real != nil {
			if err := b.real.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := b.sim.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		b.logger.Info("bus closed", zap.String("mode", b.Mode().String()))
	})
	return firstErr
}
