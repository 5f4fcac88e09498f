// Package testutil holds helpers shared by service-level tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Asif90988/banking-dashboard-streaming/internal/infrastructure/events"
)

// TestContext creates a context with timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewSimulatedBus returns a started bus in simulation mode with a short
// delivery delay on the real clock. It is closed on test cleanup.
func NewSimulatedBus(t *testing.T) *events.Bus {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := clockwork.NewRealClock()

	sim := events.NewSimulatedTransport(events.SimulatedConfig{Delay: 5 * time.Millisecond}, clock, logger)
	bus, err := events.NewBus(events.DefaultBusConfig(), nil, sim, logger, clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	require.NoError(t, bus.Start(TestContext(t)))
	require.Equal(t, events.ModeSimulation, bus.Mode())
	return bus
}
