package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
)

const redisTransportName = "redis"

// RedisConfig configures the Redis Streams transport. Each topic is a
// stream; each subscriber name is a consumer group on every topic it reads.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Group        string
	Consumer     string
	MaxLen       int64
	Block        time.Duration
	Count        int64
	DialTimeout  time.Duration
	RetryBackoff time.Duration
}

// RedisTransport is the broker-backed transport
type RedisTransport struct {
	client *redis.Client
	config RedisConfig
	clock  clockwork.Clock
	logger *zap.Logger

	mu        sync.Mutex
	subs      []*redisSubscription
	closeOnce sync.Once
}

// NewRedisTransport creates the client. It does not contact the server; the
// bus probes reachability with Ping at startup.
func NewRedisTransport(cfg RedisConfig, clock clockwork.Clock, logger *zap.Logger) (*RedisTransport, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Group == "" {
		cfg.Group = "screening"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-" + uuid.NewString()[:8]
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 64
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  1,
	})

	return &RedisTransport{
		client: client,
		config: cfg,
		clock:  clock,
		logger: logger.Named("redis_transport"),
	}, nil
}

func (r *RedisTransport) Name() string {
	return redisTransportName
}

func (r *RedisTransport) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.NewTransportError(redisTransportName, "ping failed").WithCause(err)
	}
	return nil
}

// EnsureTopics creates each stream with the base consumer group. An existing
// group (BUSYGROUP) means the topic is already provisioned.
func (r *RedisTransport) EnsureTopics(ctx context.Context, topics []stream.Topic) error {
	for _, topic := range topics {
		if err := r.ensureGroup(ctx, topic, r.config.Group); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisTransport) ensureGroup(ctx context.Context, topic stream.Topic, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, topic.String(), group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return errors.NewTransportError(redisTransportName,
			fmt.Sprintf("create group %s on %s", group, topic)).WithCause(err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (r *RedisTransport) Publish(ctx context.Context, env stream.Envelope) error {
	args := &redis.XAddArgs{
		Stream: env.Topic.String(),
		Values: map[string]interface{}{
			"id":      env.ID.String(),
			"key":     env.Key,
			"payload": string(env.Payload),
			"ts":      env.Timestamp.Format(time.RFC3339Nano),
		},
	}
	if r.config.MaxLen > 0 {
		args.MaxLen = r.config.MaxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return errors.NewTransportError(redisTransportName, "xadd to "+env.Topic.String()).WithCause(err)
	}
	return nil
}

func (r *RedisTransport) Subscribe(ctx context.Context, name string, topics []stream.Topic, deliver DeliverFunc) (Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.NewValidationError("NO_TOPICS", "subscription needs at least one topic")
	}

	group := r.config.Group + "." + name
	for _, topic := range topics {
		if err := r.ensureGroup(ctx, topic, group); err != nil {
			return nil, err
		}
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{
		transport: r,
		name:      name,
		group:     group,
		topics:    topics,
		deliver:   deliver,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	go sub.run(subCtx)

	r.logger.Info("subscription registered",
		zap.String("subscriber", name),
		zap.String("group", group),
		zap.Int("topics", len(topics)))

	return sub, nil
}

func (r *RedisTransport) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		subs := r.subs
		r.subs = nil
		r.mu.Unlock()

		for _, s := range subs {
			_ = s.Close()
		}

		if cerr := r.client.Close(); cerr != nil {
			r.logger.Error("redis close failed", zap.Error(cerr))
			err = fmt.Errorf("redis close failed: %w", cerr)
			return
		}
		r.logger.Info("redis transport closed")
	})
	return err
}

type redisSubscription struct {
	transport *RedisTransport
	name      string
	group     string
	topics    []stream.Topic
	deliver   DeliverFunc
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.done)

	r := s.transport
	streams := make([]string, 0, len(s.topics)*2)
	for _, t := range s.topics {
		streams = append(streams, t.String())
	}
	for range s.topics {
		streams = append(streams, ">")
	}

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: r.config.Consumer,
			Streams:  streams,
			Count:    r.config.Count,
			Block:    r.config.Block,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("xreadgroup failed",
				zap.String("subscriber", s.name),
				zap.Error(err))
			select {
			case <-r.clock.After(r.config.RetryBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, xs := range res {
			for _, msg := range xs.Messages {
				env, err := decodeStreamMessage(stream.Topic(xs.Stream), msg)
				if err != nil {
					r.logger.Warn("dropping malformed stream entry",
						zap.String("topic", xs.Stream),
						zap.String("entry_id", msg.ID),
						zap.Error(err))
				} else {
					s.deliver(env)
				}
				if err := r.client.XAck(ctx, xs.Stream, s.group, msg.ID).Err(); err != nil && ctx.Err() == nil {
					r.logger.Warn("xack failed",
						zap.String("topic", xs.Stream),
						zap.String("entry_id", msg.ID),
						zap.Error(err))
				}
			}
		}
	}
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func decodeStreamMessage(topic stream.Topic, msg redis.XMessage) (stream.Envelope, error) {
	str := func(field string) string {
		v, _ := msg.Values[field].(string)
		return v
	}

	id, err := uuid.Parse(str("id"))
	if err != nil {
		return stream.Envelope{}, fmt.Errorf("invalid envelope id: %w", err)
	}
	payload := str("payload")
	if !json.Valid([]byte(payload)) {
		return stream.Envelope{}, fmt.Errorf("payload is not valid JSON")
	}
	ts, err := time.Parse(time.RFC3339Nano, str("ts"))
	if err != nil {
		return stream.Envelope{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	return stream.Envelope{
		ID:        id,
		Topic:     topic,
		Key:       str("key"),
		Payload:   json.RawMessage(payload),
		Timestamp: ts,
	}, nil
}
