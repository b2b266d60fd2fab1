package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/broker-streamer/internal/metrics"
	"github.com/rickgao/broker-streamer/internal/streamer"
)

// httpHandler serves health, debug and metrics endpoints.
func (a *app) httpHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Streamer session
		state := a.session.State()
		stats := a.session.RouterStats()
		health.Components["streamer"] = map[string]any{
			"session_id": a.session.ID(),
			"state":      state.String(),
			"pushes":     stats.PushesReceived,
			"events":     stats.EventsRouted,
			"queued":     stats.Queue.Count,
			"dropped":    stats.Queue.Dropped,
		}
		if state != streamer.Connected {
			health.Status = "unhealthy"
		}

		// Check database
		if a.pool != nil {
			if err := a.pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				ws := a.recorder.Stats()
				health.Components["timescaledb"] = map[string]any{
					"status":  "connected",
					"inserts": ws.Inserts,
					"errors":  ws.Errors,
					"dropped": ws.Dropped,
				}
			}
		}

		// Check redis
		if a.redis != nil {
			ps := a.publisher.Stats()
			component := map[string]any{
				"status":    "connected",
				"published": ps.Published,
				"errors":    ps.Errors,
			}
			if err := a.redis.Ping(ctx).Err(); err != nil {
				component["status"] = "disconnected"
				component["error"] = err.Error()
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
			health.Components["redis"] = component
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		instruments := a.session.Quotes().Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"state":       a.session.State().String(),
			"news":        a.session.News().IsActive(),
			"orders":      a.session.Orders().IsActive(),
			"count":       len(instruments),
			"instruments": instruments,
		})
	})

	mux.Handle(a.cfg.Metrics.Path, metrics.Handler(a.registry))

	return mux
}
