package events

import (
	"context"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
)

// DeliverFunc receives envelopes for one subscription. Transports call it
// from a single goroutine per subscription, in delivery order.
type DeliverFunc func(env stream.Envelope)

// MessageTransport moves envelopes between publishers and subscribers
type MessageTransport interface {
	// Name identifies the transport in logs and metrics
	Name() string

	// Ping checks that the transport is reachable
	Ping(ctx context.Context) error

	// EnsureTopics creates any missing topics. Idempotent.
	EnsureTopics(ctx context.Context, topics []stream.Topic) error

	// Publish returns once the transport has accepted the envelope
	Publish(ctx context.Context, env stream.Envelope) error

	// Subscribe starts delivering envelopes on topics to deliver. name
	// identifies the subscriber; subscribers with different names each see
	// every envelope.
	Subscribe(ctx context.Context, name string, topics []stream.Topic, deliver DeliverFunc) (Subscription, error)

	// Close releases the transport's resources
	Close() error
}

// Subscription is an active registration on a transport
type Subscription interface {
	// Close stops delivery and waits for the delivery goroutine to exit
	Close() error
}

// topicSet is a small membership helper shared by the transports
type topicSet map[stream.Topic]struct{}

func newTopicSet(topics []stream.Topic) topicSet {
	s := make(topicSet, len(topics))
	for _, t := range topics {
		s[t] = struct{}{}
	}
	return s
}

func (s topicSet) has(t stream.Topic) bool {
	_, ok := s[t]
	return ok
}
