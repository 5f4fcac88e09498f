package screening_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/alert"
	"github.com/Asif90988/banking-dashboard-streaming/internal/domain/sanctions"
	registryclient "github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/registry"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/generator"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/hub"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/registry"
	"github.com/Asif90988/banking-dashboard-streaming/internal/service/screening"
	"github.com/Asif90988/banking-dashboard-streaming/internal/testutil"
)

// Registry snapshot and generated traffic flow through the simulated bus
// into the matcher, and flags land in the hub.
func TestPipeline_SanctionsHitScenario(t *testing.T) {
	ctx := testutil.TestContext(t)
	logger := zaptest.NewLogger(t)
	clock := clockwork.NewRealClock()
	bus := testutil.NewSimulatedBus(t)

	h := hub.New(hub.Config{HistoryCap: 50}, clock, logger)
	require.NoError(t, bus.Subscribe(ctx, "hub-relay", hub.RelayTopics(), h.HandleEnvelope))

	m, err := screening.NewMatcher(screening.DefaultConfig(), bus, h, clock, logger)
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx, bus))

	producer, err := registry.NewProducer(registry.DefaultConfig(), registryclient.NewStaticFetcher(clock), bus, h, clock, logger)
	require.NoError(t, err)
	require.NoError(t, producer.PollOnce(ctx))

	require.Eventually(t, func() bool { return m.Snapshot().Len() == len(sanctions.SampleNames()) }, time.Second, 5*time.Millisecond)
	names := make([]string, 0, m.Snapshot().Len())
	for _, e := range m.Snapshot().Entities {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, sanctions.SampleNames(), names)

	factory := generator.NewFactory(7, 0, sanctions.SampleNames(), clock)
	gen, err := generator.New(generator.Config{}, bus, factory, clock, logger)
	require.NoError(t, err)

	result, err := gen.SimulateScenario(ctx, "Sanctions Hit")
	require.NoError(t, err)
	require.Equal(t, 3, result.Published)

	require.Eventually(t, func() bool { return len(h.FlaggedTransactions()) == 3 }, 2*time.Second, 5*time.Millisecond)
	for _, f := range h.FlaggedTransactions() {
		assert.Equal(t, 100.0, f.Score)
		assert.Equal(t, sanctions.StatusPendingReview, f.Status)
	}

	alerts := h.Alerts()
	require.Len(t, alerts, 3)
	for _, a := range alerts {
		assert.Equal(t, alert.SeverityCritical, a.Severity)
	}

	summaries, err := h.History(hub.CategorySanctions)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}
