package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Asif90988/banking-dashboard-streaming/internal/api/rest"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/alert"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/errors"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/stream"
	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/events"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/generator"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
)

type fakeBus struct {
	mode  events.Mode
	stats stream.StatsSnapshot
	dead  []events.DeadLetter
}

func (f *fakeBus) Mode() events.Mode { return f.mode }
func (f *fakeBus) Stats() stream.StatsSnapshot { return f.stats }

func (f *fakeBus) DeadLetters(limit int) []events.DeadLetter {
	if limit > 0 && limit < len(f.dead) {
		return f.dead[len(f.dead)-limit:]
	}
	return f.dead
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) TriggerBurst(ctx context.Context, topic stream.Topic, count int) (int, error) {
	args := m.Called(ctx, topic, count)
	return args.Int(0), args.Error(1)
}

func (m *mockGenerator) SimulateScenario(ctx context.Context, name string) (generator.ScenarioResult, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(generator.ScenarioResult), args.Error(1)
}

func (m *mockGenerator) Stats() generator.Stats {
	return generator.Stats{Running: true, Published: 42}
}

type fakeRefresher struct {
	err   error
	calls int
	at    time.Time
	size  int
}

func (f *fakeRefresher) PollOnce(ctx context.Context) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.at = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.size = 8
	return nil
}

func (f *fakeRefresher) LastRefresh() (time.Time, int) { return f.at, f.size }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Fields  map[string][]string `json:"fields"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
		Version   string `json:"version"`
	} `json:"meta"`
}

type fixture struct {
	bus       *fakeBus
	hub       *hub.Hub
	generator *mockGenerator
	refresher *fakeRefresher
	router    http.Handler
}

func newFixture(t *testing.T, withGenerator bool) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{
		bus:       &fakeBus{mode: events.ModeSimulation, stats: stream.StatsSnapshot{MessagesProduced: 7, SimulationMode: true}},
		hub:       hub.New(hub.Config{HistoryCap: 10}, nil, logger),
		refresher: &fakeRefresher{},
	}
	deps := rest.Dependencies{
		Bus:      f.bus,
		Hub:      f.hub,
		Registry: f.refresher,
		Logger:   logger,
		Version:  "test",
	}
	if withGenerator {
		f.generator = &mockGenerator{}
		deps.Generator = f.generator
	}
	h, err := rest.NewHandlers(deps)
	require.NoError(t, err)
	f.router = rest.NewRouter(h, nil, logger)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestNewHandlers_RequiresBusAndHub(t *testing.T) {
	_, err := rest.NewHandlers(rest.Dependencies{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		mode       events.Mode
		wantStatus int
		wantState  string
	}{
		{"connected", events.ModeConnected, http.StatusOK, "healthy"},
		{"simulation", events.ModeSimulation, http.StatusOK, "degraded"},
		{"unavailable", events.ModeUnavailable, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.bus.mode = tt.mode

			rec, _ := f.do(t, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp rest.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantState, resp.Status)
			assert.Equal(t, tt.mode.String(), resp.Mode)
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-123", env.Meta.RequestID)

	rec, env = f.do(t, http.MethodGet, "/api/v1/alerts", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), env.Meta.RequestID)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamingStats(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.hub.Record(context.Background(), hub.CategoryBudget, map[string]any{"department": "Treasury"})
	require.NoError(t, err)

	rec, env := f.do(t, http.MethodGet, "/api/v1/streaming/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	assert.Equal(t, "test", env.Meta.Version)

	var stats rest.StreamingStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, "simulation", stats.Mode)
	assert.Equal(t, int64(7), stats.Bus.MessagesProduced)
	assert.Equal(t, int64(1), stats.Hub[hub.CategoryBudget].Total)
	require.NotNil(t, stats.Generator)
	assert.Equal(t, int64(42), stats.Generator.Published)
	require.NotNil(t, stats.Registry)
	assert.Nil(t, stats.Registry.LastRefresh)
}

func TestDeadLetters(t *testing.T) {
	f := newFixture(t, false)
	f.bus.dead = []events.DeadLetter{
		{Subscriber: "hub-relay", Reason: "first"},
		{Subscriber: "screening-transactions", Reason: "second"},
	}

	rec, env := f.do(t, http.MethodGet, "/api/v1/streaming/dead-letters?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dead []events.DeadLetter
	require.NoError(t, json.Unmarshal(env.Data, &dead))
	require.Len(t, dead, 1)
	assert.Equal(t, "second", dead[0].Reason)
}

func TestAlerts_CreateAndFilter(t *testing.T) {
	f := newFixture(t, false)

	rec, env := f.do(t, http.MethodPost, "/api/v1/alerts", rest.CreateAlertRequest{
		Severity: "critical",
		Message:  "Manual escalation",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created alert.Alert
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, alert.SeverityCritical, created.Severity)
	assert.Equal(t, "api", created.Source)

	_, err := f.hub.SendAlert(context.Background(), alert.SeverityInfo, "routine", "test")
	require.NoError(t, err)

	_, env = f.do(t, http.MethodGet, "/api/v1/alerts", nil)
	var all []alert.Alert
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	_, env = f.do(t, http.MethodGet, "/api/v1/alerts?min_severity=high", nil)
	var severe []alert.Alert
	require.NoError(t, json.Unmarshal(env.Data, &severe))
	require.Len(t, severe, 1)
	assert.Equal(t, "Manual escalation", severe[0].Message)

	_, env = f.do(t, http.MethodGet, "/api/v1/alerts?limit=1", nil)
	var last []alert.Alert
	require.NoError(t, json.Unmarshal(env.Data, &last))
	require.Len(t, last, 1)
	assert.Equal(t, "routine", last[0].Message)
}

func TestAlerts_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode string
	}{
		{"bad severity filter", http.MethodGet, "/api/v1/alerts?min_severity=extreme", nil, "INVALID_SEVERITY"},
		{"bad limit", http.MethodGet, "/api/v1/alerts?limit=-3", nil, "INVALID_LIMIT"},
		{"malformed json", http.MethodPost, "/api/v1/alerts", "{", "INVALID_JSON"},
		{"unknown field", http.MethodPost, "/api/v1/alerts", `{"severity":"info","message":"x","extra":1}`, "INVALID_JSON"},
		{"missing message", http.MethodPost, "/api/v1/alerts", rest.CreateAlertRequest{Severity: "info"}, "VALIDATION_ERROR"},
		{"bad severity", http.MethodPost, "/api/v1/alerts", rest.CreateAlertRequest{Severity: "extreme", Message: "x"}, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec, env := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}

func TestAlerts_ValidationFields(t *testing.T) {
	f := newFixture(t, false)
	_, env := f.do(t, http.MethodPost, "/api/v1/alerts", rest.CreateAlertRequest{Severity: "info"})
	require.NotNil(t, env.Error)
	assert.Equal(t, []string{"This field is required"}, env.Error.Fields["message"])
}

func TestHistory(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.hub.Record(ctx, hub.CategoryRisk, map[string]any{"n": i})
		require.NoError(t, err)
	}

	rec, env := f.do(t, http.MethodGet, "/api/v1/history/risk?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []hub.Notification
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].Sequence)

	rec, env = f.do(t, http.MethodGet, "/api/v1/history/weather", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CATEGORY", env.Error.Code)
}

func TestFlaggedTransactions_Empty(t *testing.T) {
	f := newFixture(t, false)
	rec, env := f.do(t, http.MethodGet, "/api/v1/flagged-transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var flagged []hub.Notification
	require.NoError(t, json.Unmarshal(env.Data, &flagged))
	assert.Empty(t, flagged)
}

func TestTriggerBurst(t *testing.T) {
	f := newFixture(t, true)
	f.generator.On("TriggerBurst", mock.Anything, stream.TopicTransactions, 25).Return(25, nil).Once()

	rec, env := f.do(t, http.MethodPost, "/api/v1/generator/bursts", rest.BurstRequest{Topic: "transaction-stream", Count: 25})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp rest.BurstResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, rest.BurstResponse{Topic: "transaction-stream", Requested: 25, Published: 25}, resp)
	f.generator.AssertExpectations(t)
}

func TestTriggerBurst_Invalid(t *testing.T) {
	f := newFixture(t, true)

	rec, env := f.do(t, http.MethodPost, "/api/v1/generator/bursts", rest.BurstRequest{Topic: "transaction-stream", Count: 5000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/generator/bursts", rest.BurstRequest{Topic: "bad topic", Count: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEqual(t, "VALIDATION_ERROR", env.Error.Code)

	f.generator.AssertNotCalled(t, "TriggerBurst", mock.Anything, mock.Anything, mock.Anything)
}

func TestSimulateScenario(t *testing.T) {
	f := newFixture(t, true)
	f.generator.On("SimulateScenario", mock.Anything, "budget_crisis").
		Return(generator.ScenarioResult{Scenario: "budget-crisis", Published: 5, PerTopic: map[string]int{"budget-updates": 5}}, nil)
	f.generator.On("SimulateScenario", mock.Anything, "meteor").
		Return(generator.ScenarioResult{}, errors.NewValidationError("UNKNOWN_SCENARIO", "unknown scenario"))

	rec, env := f.do(t, http.MethodPost, "/api/v1/generator/scenarios/budget_crisis", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var result generator.ScenarioResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 5, result.Published)

	rec, env = f.do(t, http.MethodPost, "/api/v1/generator/scenarios/meteor", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_SCENARIO", env.Error.Code)
}

func TestGeneratorDisabled(t *testing.T) {
	f := newFixture(t, false)

	rec, env := f.do(t, http.MethodPost, "/api/v1/generator/scenarios/budget-crisis", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "GENERATOR_DISABLED", env.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/generator/bursts", rest.BurstRequest{Topic: "risk-events", Count: 1})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshRegistry(t *testing.T) {
	f := newFixture(t, false)

	rec, env := f.do(t, http.MethodPost, "/api/v1/registry/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.refresher.calls)
	var status rest.RegistryStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 8, status.Entities)
	require.NotNil(t, status.LastRefresh)

	f.refresher.err = errors.NewExternalError("registry", "HTTP 500")
	rec, env = f.do(t, http.MethodPost, "/api/v1/registry/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", env.Error.Code)

	f.refresher.err = fmt.Errorf("boom")
	rec, env = f.do(t, http.MethodPost, "/api/v1/registry/refresh", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, false)
	rec, _ := f.do(t, http.MethodDelete, "/api/v1/alerts", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, false)
	rec, _ := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
