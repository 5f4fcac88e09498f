package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/alert"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/events"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/generator"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
)

const maxBodyBytes = 1 << 20

// BusStatus is the read side of the topic bus
type BusStatus interface {
	Mode() events.Mode
	Stats() stream.StatsSnapshot
	DeadLetters(limit int) []events.DeadLetter
}

// Hub is what the handlers read from and record into
type Hub interface {
	SendAlert(ctx context.Context, severity alert.Severity, message, source string) (alert.Alert, error)
	History(category hub.Category) ([]hub.Notification, error)
	Alerts() []alert.Alert
	Counts() map[hub.Category]hub.CategoryCount
}

// LoadGenerator drives synthetic traffic on demand
type LoadGenerator interface {
	TriggerBurst(ctx context.Context, topic stream.Topic, count int) (int, error)
	SimulateScenario(ctx context.Context, name string) (generator.ScenarioResult, error)
	Stats() generator.Stats
}

// Refresher forces a registry poll outside the schedule
type Refresher interface {
	PollOnce(ctx context.Context) error
	LastRefresh() (time.Time, int)
}

// Dependencies groups what NewHandlers needs. Generator and Registry may be
// nil; their endpoints then answer 503.
type Dependencies struct {
	Bus       BusStatus
	Hub       Hub
	Generator LoadGenerator
	Registry  Refresher
	Logger    *zap.Logger
	Version   string
}

// Handlers serves the control and query API
type Handlers struct {
	bus       BusStatus
	hub       Hub
	generator LoadGenerator
	registry  Refresher
	logger    *zap.Logger
	validator *validator.Validate
	version   string
	startedAt time.Time
}

func NewHandlers(deps Dependencies) (*Handlers, error) {
	if deps.Bus == nil || deps.Hub == nil {
		return nil, fmt.Errorf("bus and hub are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	return &Handlers{
		bus:       deps.Bus,
		hub:       deps.Hub,
		generator: deps.Generator,
		registry:  deps.Registry,
		logger:    logger,
		validator: validator.New(),
		version:   version,
		startedAt: time.Now(),
	}, nil
}

// HealthResponse is served on /health
type HealthResponse struct {
	Status        string  `json:"status"`
	Mode          string  `json:"mode"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

// Health reports 503 only when the bus has no usable transport
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	mode := h.bus.Mode()
	resp := HealthResponse{
		Status:        "healthy",
		Mode:          mode.String(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Version:       h.version,
	}
	status := http.StatusOK
	switch mode {
	case events.ModeUnavailable, events.ModeUninitialized:
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	case events.ModeSimulation:
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

// StreamingStats is the dashboard's overview payload
type StreamingStats struct {
	Mode      string                             `json:"mode"`
	Bus       stream.StatsSnapshot               `json:"bus"`
	Hub       map[hub.Category]hub.CategoryCount `json:"hub"`
	Generator *generator.Stats                   `json:"generator,omitempty"`
	Registry  *RegistryStatus                    `json:"registry,omitempty"`
}

// RegistryStatus describes the last successful refresh
type RegistryStatus struct {
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	Entities    int        `json:"entities"`
}

func (h *Handlers) StreamingStats(w http.ResponseWriter, r *http.Request) {
	resp := StreamingStats{
		Mode: h.bus.Mode().String(),
		Bus:  h.bus.Stats(),
		Hub:  h.hub.Counts(),
	}
	if h.generator != nil {
		stats := h.generator.Stats()
		resp.Generator = &stats
	}
	if h.registry != nil {
		resp.Registry = h.registryStatus()
	}
	h.writeSuccess(w, r, http.StatusOK, resp)
}

func (h *Handlers) registryStatus() *RegistryStatus {
	at, size := h.registry.LastRefresh()
	status := &RegistryStatus{Entities: size}
	if !at.IsZero() {
		status.LastRefresh = &at
	}
	return status
}

// DeadLetters lists recent handler failures; ?limit= applies
func (h *Handlers) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, h.bus.DeadLetters(limit))
}

// ListAlerts supports ?min_severity= and ?limit=
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.hub.Alerts()

	if raw := r.URL.Query().Get("min_severity"); raw != "" {
		floor, err := alert.ParseSeverity(raw)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		filtered := alerts[:0:0]
		for _, a := range alerts {
			if a.Severity.AtLeast(floor) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}

	limit, err := parseLimit(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[len(alerts)-limit:]
	}
	h.writeSuccess(w, r, http.StatusOK, alerts)
}

// CreateAlertRequest is the body of POST /api/v1/alerts
type CreateAlertRequest struct {
	Severity string `json:"severity" validate:"required,oneof=critical high medium warning warn info"`
	Message  string `json:"message" validate:"required,max=1024"`
	Source   string `json:"source" validate:"omitempty,max=128"`
}

func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if !h.decode(w, r, &req) {
		return
	}
	severity, err := alert.ParseSeverity(req.Severity)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}
	created, err := h.hub.SendAlert(r.Context(), severity, req.Message, source)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusCreated, created)
}

func (h *Handlers) FlaggedTransactions(w http.ResponseWriter, r *http.Request) {
	h.writeHistory(w, r, hub.CategoryFlagged)
}

// History serves the retained notifications of one category
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	category, err := hub.ParseCategory(r.PathValue("category"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeHistory(w, r, category)
}

func (h *Handlers) writeHistory(w http.ResponseWriter, r *http.Request, category hub.Category) {
	history, err := h.hub.History(category)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	h.writeSuccess(w, r, http.StatusOK, history)
}

// BurstRequest is the body of POST /api/v1/generator/bursts
type BurstRequest struct {
	Topic string `json:"topic" validate:"required"`
	Count int    `json:"count" validate:"min=1,max=1000"`
}

// BurstResponse reports what a burst published
type BurstResponse struct {
	Topic     string `json:"topic"`
	Requested int    `json:"requested"`
	Published int    `json:"published"`
}

func (h *Handlers) TriggerBurst(w http.ResponseWriter, r *http.Request) {
	if !h.requireGenerator(w, r) {
		return
	}
	var req BurstRequest
	if !h.decode(w, r, &req) {
		return
	}
	topic, err := stream.ParseTopic(req.Topic)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sent, err := h.generator.TriggerBurst(r.Context(), topic, req.Count)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusAccepted, BurstResponse{
		Topic:     topic.String(),
		Requested: req.Count,
		Published: sent,
	})
}

func (h *Handlers) SimulateScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireGenerator(w, r) {
		return
	}
	result, err := h.generator.SimulateScenario(r.Context(), r.PathValue("name"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusAccepted, result)
}

// RefreshRegistry runs one registry poll synchronously
func (h *Handlers) RefreshRegistry(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, &ErrorResponse{
			Code:    "REGISTRY_DISABLED",
			Message: "registry producer is not running",
		})
		return
	}
	if err := h.registry.PollOnce(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeSuccess(w, r, http.StatusOK, h.registryStatus())
}

func (h *Handlers) requireGenerator(w http.ResponseWriter, r *http.Request) bool {
	if h.generator != nil {
		return true
	}
	h.writeError(w, r, http.StatusServiceUnavailable, &ErrorResponse{
		Code:    "GENERATOR_DISABLED",
		Message: "load generator is not running",
	})
	return false
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "INVALID_JSON",
			Message: "Request body must be valid JSON: " + err.Error(),
		})
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Request validation failed",
			Fields:  validationFields(err),
		})
		return false
	}
	return true
}

func validationFields(err error) map[string][]string {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return nil
	}
	fields := make(map[string][]string)
	for _, fe := range validationErrors {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required"
		case "min":
			msg = fmt.Sprintf("Minimum value is %s", fe.Param())
		case "max":
			msg = fmt.Sprintf("Maximum value is %s", fe.Param())
		case "oneof":
			msg = fmt.Sprintf("Must be one of: %s", fe.Param())
		default:
			msg = fmt.Sprintf("Failed %s validation", fe.Tag())
		}
		field := strings.ToLower(fe.Field())
		fields[field] = append(fields[field], msg)
	}
	return fields
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.NewValidationError("INVALID_LIMIT", "limit must be a non-negative integer: "+raw)
	}
	return limit, nil
}
