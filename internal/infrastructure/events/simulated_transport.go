package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
)

const simulatedTransportName = "simulated"

// SimulatedConfig configures the in-process transport
type SimulatedConfig struct {
	// Delay between publish and delivery
	Delay time.Duration
	// QueueSize bounds envelopes waiting for their delivery time
	QueueSize int
	// InboxSize bounds envelopes waiting for a subscriber's handler
	InboxSize int
}

// DefaultSimulatedConfig returns the defaults used when no broker is reachable
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		Delay:     100 * time.Millisecond,
		QueueSize: 4096,
		InboxSize: 1024,
	}
}

type pendingDelivery struct {
	env stream.Envelope
	due time.Time
}

// SimulatedTransport loops published envelopes back to in-process
// subscribers after a fixed delay. Every envelope is delivered in publish
// order; no network is involved.
type SimulatedTransport struct {
	config SimulatedConfig
	clock  clockwork.Clock
	logger *zap.Logger

	mu     sync.RWMutex
	topics topicSet
	subs   map[uint64]*simSubscription
	nextID uint64

	queue     chan pendingDelivery
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSimulatedTransport creates the transport and starts its dispatcher
func NewSimulatedTransport(config SimulatedConfig, clock clockwork.Clock, logger *zap.Logger) *SimulatedTransport {
	defaults := DefaultSimulatedConfig()
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.InboxSize <= 0 {
		config.InboxSize = defaults.InboxSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	t := &SimulatedTransport{
		config: config,
		clock:  clock,
		logger: logger.Named("simulated_transport"),
		topics: make(topicSet),
		subs:   make(map[uint64]*simSubscription),
		queue:  make(chan pendingDelivery, config.QueueSize),
		closed: make(chan struct{}),
	}

	t.wg.Add(1)
	go t.dispatch()

	return t
}

func (t *SimulatedTransport) Name() string {
	return simulatedTransportName
}

// Ping always succeeds while the transport is open
func (t *SimulatedTransport) Ping(ctx context.Context) error {
	select {
	case <-t.closed:
		return errors.NewTransportError(simulatedTransportName, "transport closed")
	default:
		return nil
	}
}

func (t *SimulatedTransport) EnsureTopics(ctx context.Context, topics []stream.Topic) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, topic := range topics {
		if t.topics.has(topic) {
			continue
		}
		t.topics[topic] = struct{}{}
		t.logger.Debug("topic registered", zap.String("topic", topic.String()))
	}
	return nil
}

// Topics returns the registered topics, sorted
func (t *SimulatedTransport) Topics() []stream.Topic {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]stream.Topic, 0, len(t.topics))
	for topic := range t.topics {
		out = append(out, topic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Publish schedules delivery and returns immediately
func (t *SimulatedTransport) Publish(ctx context.Context, env stream.Envelope) error {
	p := pendingDelivery{env: env.Clone(), due: t.clock.Now().Add(t.config.Delay)}

	select {
	case <-t.closed:
		return errors.NewTransportError(simulatedTransportName, "transport closed")
	default:
	}

	t.mu.Lock()
	t.topics[env.Topic] = struct{}{}
	t.mu.Unlock()

	select {
	case t.queue <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.NewTransportError(simulatedTransportName, "delivery queue full")
	}
}

func (t *SimulatedTransport) Subscribe(ctx context.Context, name string, topics []stream.Topic, deliver DeliverFunc) (Subscription, error) {
	select {
	case <-t.closed:
		return nil, errors.NewTransportError(simulatedTransportName, "transport closed")
	default:
	}

	sub := &simSubscription{
		name:      name,
		topics:    newTopicSet(topics),
		inbox:     make(chan stream.Envelope, t.config.InboxSize),
		done:      make(chan struct{}),
		deliver:   deliver,
		transport: t,
	}

	t.mu.Lock()
	t.nextID++
	sub.id = t.nextID
	t.subs[sub.id] = sub
	for _, topic := range topics {
		t.topics[topic] = struct{}{}
	}
	t.mu.Unlock()

	sub.wg.Add(1)
	go sub.run()

	t.logger.Info("subscription registered",
		zap.String("subscriber", name),
		zap.Int("topics", len(topics)))

	return sub, nil
}

func (t *SimulatedTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.wg.Wait()

		t.mu.Lock()
		subs := make([]*simSubscription, 0, len(t.subs))
		for _, s := range t.subs {
			subs = append(subs, s)
		}
		t.mu.Unlock()

		for _, s := range subs {
			_ = s.Close()
		}
		t.logger.Info("simulated transport closed")
	})
	return nil
}

// dispatch releases queued envelopes once due. Delay is fixed, so queue
// order equals due order and publish order is preserved.
func (t *SimulatedTransport) dispatch() {
	defer t.wg.Done()

	for {
		var p pendingDelivery
		select {
		case p = <-t.queue:
		case <-t.closed:
			return
		}

		if wait := p.due.Sub(t.clock.Now()); wait > 0 {
			select {
			case <-t.clock.After(wait):
			case <-t.closed:
				return
			}
		}

		for _, sub := range t.subscribersFor(p.env.Topic) {
			select {
			case sub.inbox <- p.env:
			case <-sub.done:
			case <-t.closed:
				return
			}
		}
	}
}

// subscribersFor returns matching subscriptions in registration order
func (t *SimulatedTransport) subscribersFor(topic stream.Topic) []*simSubscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*simSubscription, 0, len(t.subs))
	for _, s := range t.subs {
		if s.topics.has(topic) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (t *SimulatedTransport) removeSubscription(id uint64) {
	t.mu.Lock()
	delete(t.subs, id)
	t.mu.Unlock()
}

type simSubscription struct {
	id        uint64
	name      string
	topics    topicSet
	inbox     chan stream.Envelope
	done      chan struct{}
	deliver   DeliverFunc
	transport *SimulatedTransport
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *simSubscription) run() {
	defer s.wg.Done()
	for {
		select {
		case env := <-s.inbox:
			s.deliver(env.Clone())
		case <-s.done:
			return
		}
	}
}

func (s *simSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.transport.removeSubscription(s.id)
		close(s.done)
		s.wg.Wait()
	})
	return nil
}
