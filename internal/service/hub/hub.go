// Package hub keeps bounded per-category histories of pipeline records and
// fans each new record out to registered observers.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/alert"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/metrics"
)

// Category groups hub records
type Category string

const (
	CategoryBudget     Category = "budget"
	CategoryProject    Category = "project"
	CategoryCompliance Category = "compliance"
	CategoryRisk       Category = "risk"
	CategorySanctions  Category = "sanctions"
	CategoryFlagged    Category = "flagged-transactions"
	CategoryAlerts     Category = "alerts"
	CategorySystem     Category = "system"
)

var categories = []Category{
	CategoryBudget,
	CategoryProject,
	CategoryCompliance,
	CategoryRisk,
	CategorySanctions,
	CategoryFlagged,
	CategoryAlerts,
	CategorySystem,
}

// Categories returns every category in display order
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range categories {
		if c == known {
			return c, nil
		}
	}
	return "", errors.NewValidationError("INVALID_CATEGORY", "unknown hub category: "+s)
}

// topicCategories maps relayed bus topics to hub categories. Sanctions and
// flagged records are recorded by their producers directly.
var topicCategories = map[stream.Topic]Category{
	stream.TopicBudgetUpdates:    CategoryBudget,
	stream.TopicProjectUpdates:   CategoryProject,
	stream.TopicComplianceAlerts: CategoryCompliance,
	stream.TopicRiskEvents:       CategoryRisk,
	stream.TopicSystemMetrics:    CategorySystem,
}

// RelayTopics returns the bus topics HandleEnvelope accepts
func RelayTopics() []stream.Topic {
	out := make([]stream.Topic, 0, len(topicCategories))
	for t := range topicCategories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Notification is what observers receive for every record
type Notification struct {
	Sequence  uint64          `json:"sequence"`
	Category  Category        `json:"category"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Observer receives notifications in record order
type Observer interface {
	Notify(ctx context.Context, n Notification) error
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, n Notification) error

func (f ObserverFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Config configures the hub
type Config struct {
	HistoryCap int
}

type registration struct {
	id       uint64
	name     string
	observer Observer
}

// Hub is safe for concurrent use
type Hub struct {
	config Config
	clock  clockwork.Clock
	logger *zap.Logger

	// notifyMu serializes Record end to end so observers see records in
	// sequence order
	notifyMu sync.Mutex

	mu        sync.RWMutex
	history   map[Category]*ring[Notification]
	totals    map[Category]int64
	observers []registration
	sequence  uint64
	nextObsID uint64
}

func New(config Config, clock clockwork.Clock, logger *zap.Logger) *Hub {
	if config.HistoryCap <= 0 {
		config.HistoryCap = 100
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		config:  config,
		clock:   clock,
		logger:  logger.Named("hub"),
		history: make(map[Category]*ring[Notification], len(categories)),
		totals:  make(map[Category]int64, len(categories)),
	}
	for _, c := range categories {
		h.history[c] = newRing[Notification](config.HistoryCap)
	}
	return h
}

// Record appends payload to the category's history and notifies observers
func (h *Hub) Record(ctx context.Context, category Category, payload any) (Notification, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return Notification{}, errors.NewValidationError("INVALID_PAYLOAD", err.Error())
	}

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	r, ok := h.history[category]
	if !ok {
		h.mu.Unlock()
		return Notification{}, errors.NewValidationError("INVALID_CATEGORY", "unknown hub category: "+string(category))
	}
	h.sequence++
	n := Notification{
		Sequence:  h.sequence,
		Category:  category,
		Payload:   raw,
		Timestamp: h.clock.Now().UTC(),
	}
	r.push(n)
	h.totals[category]++
	observers := append([]registration(nil), h.observers...)
	h.mu.Unlock()

	metrics.HubRecordsTotal.WithLabelValues(string(category)).Inc()

	for _, reg := range observers {
		h.notify(ctx, reg, n)
	}
	return n, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		return json.Marshal(payload)
	}
}

func (h *Hub) notify(ctx context.Context, reg registration, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HubObserverFailures.WithLabelValues(reg.name).Inc()
			h.logger.Error("observer panicked",
				zap.String("observer", reg.name),
				zap.Uint64("sequence", n.Sequence),
				zap.Any("panic", r))
		}
	}()

	if err := reg.observer.Notify(ctx, n); err != nil {
		metrics.HubObserverFailures.WithLabelValues(reg.name).Inc()
		h.logger.Warn("observer failed",
			zap.String("observer", reg.name),
			zap.String("category", string(n.Category)),
			zap.Uint64("sequence", n.Sequence),
			zap.Error(err))
	}
}

// SendAlert creates an alert, records it under alerts and notifies observers
func (h *Hub) SendAlert(ctx context.Context, severity alert.Severity, message, source string) (alert.Alert, error) {
	if strings.TrimSpace(message) == "" {
		return alert.Alert{}, errors.NewValidationError("INVALID_ALERT", "alert message is required")
	}
	a := alert.New(severity, message, source, h.clock.Now())
	if _, err := h.Record(ctx, CategoryAlerts, a); err != nil {
		return alert.Alert{}, err
	}
	return a, nil
}

// Register adds an observer after all existing ones. The returned function
// unregisters it and is safe to call more than once.
func (h *Hub) Register(name string, observer Observer) func() {
	h.mu.Lock()
	h.nextObsID++
	id := h.nextObsID
	h.observers = append(h.observers, registration{id: id, name: name, observer: observer})
	count := len(h.observers)
	h.mu.Unlock()

	metrics.HubObservers.Set(float64(count))
	h.logger.Debug("observer registered", zap.String("observer", name), zap.Int("observers", count))

	var once sync.Once
	return func() {
		once.Do(func() { h.unregister(id, name) })
	}
}

func (h *Hub) unregister(id uint64, name string) {
	h.mu.Lock()
	for i, reg := range h.observers {
		if reg.id == id {
			h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
			break
		}
	}
	count := len(h.observers)
	h.mu.Unlock()

	metrics.HubObservers.Set(float64(count))
	h.logger.Debug("observer unregistered", zap.String("observer", name), zap.Int("observers", count))
}

// History returns the retained records of a category, oldest first
func (h *Hub) History(category Category) ([]Notification, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.history[category]
	if !ok {
		return nil, errors.NewValidationError("INVALID_CATEGORY", "unknown hub category: "+string(category))
	}
	return r.slice(), nil
}

// Alerts returns the retained alerts, oldest first
func (h *Hub) Alerts() []alert.Alert {
	return decodeHistory[alert.Alert](h, CategoryAlerts)
}

// FlaggedTransactions returns the retained flagged transactions, oldest first
func (h *Hub) FlaggedTransactions() []sanctions.FlaggedTransaction {
	return decodeHistory[sanctions.FlaggedTransaction](h, CategoryFlagged)
}

func decodeHistory[T any](h *Hub, category Category) []T {
	notes, _ := h.History(category)
	out := make([]T, 0, len(notes))
	for _, n := range notes {
		var v T
		if err := json.Unmarshal(n.Payload, &v); err != nil {
			h.logger.Warn("skipping undecodable history entry",
				zap.String("category", string(category)),
				zap.Uint64("sequence", n.Sequence),
				zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out
}

// CategoryCount reports retained and lifetime record counts
type CategoryCount struct {
	Retained int   `json:"retained"`
	Total    int64 `json:"total"`
}

// Counts returns per-category counts
func (h *Hub) Counts() map[Category]CategoryCount {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[Category]CategoryCount, len(h.history))
	for c, r := range h.history {
		out[c] = CategoryCount{Retained: r.len(), Total: h.totals[c]}
	}
	return out
}

// HandleEnvelope relays bus traffic into the matching category. It has the
// bus handler signature.
func (h *Hub) HandleEnvelope(ctx context.Context, env stream.Envelope) error {
	category, ok := topicCategories[env.Topic]
	if !ok {
		return fmt.Errorf("no hub category for topic %s", env.Topic)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("envelope %s on %s has empty payload", env.ID, env.Topic)
	}
	_, err := h.Record(ctx, category, env.Payload)
	return err
}
