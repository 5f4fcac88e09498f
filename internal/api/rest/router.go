package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the API. ws, when non-nil, is served on /ws and receives
// the same middleware chain.
func NewRouter(h *Handlers, ws http.Handler, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/streaming/stats", h.StreamingStats)
	mux.HandleFunc("GET /api/v1/streaming/dead-letters", h.DeadLetters)
	mux.HandleFunc("GET /api/v1/alerts", h.ListAlerts)
	mux.HandleFunc("POST /api/v1/alerts", h.CreateAlert)
	mux.HandleFunc("GET /api/v1/flagged-transactions", h.FlaggedTransactions)
	mux.HandleFunc("GET /api/v1/history/{category}", h.History)
	mux.HandleFunc("POST /api/v1/generator/bursts", h.TriggerBurst)
	mux.HandleFunc("POST /api/v1/generator/scenarios/{name}", h.SimulateScenario)
	mux.HandleFunc("POST /api/v1/registry/refresh", h.RefreshRegistry)

	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	return chain(mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(),
	)
}
