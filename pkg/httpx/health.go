package httpx

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is satisfied by any infrastructure dependency that exposes
// a Ping method (storage.DB and edge/bridge.Bridge both qualify).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks holds the set of dependencies to probe in the health endpoint.
// Storage is required on both binaries. Bridge is the edge's MQTT bridge, or
// the controller's shared broker connection; it is nil on an edge with MQTT
// disabled (MQTT_ENABLED=false). The controller's ingest loop runs its own
// broker connection, which this check does not probe.
type HealthChecks struct {
	Storage HealthChecker
	Bridge  HealthChecker
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Bridge  string `json:"mqtt_bridge,omitempty"`
}

// HealthHandler returns an http.HandlerFunc that probes all registered
// HealthCheckers and reports degraded status if any of them fail.
func HealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Storage: "ok"}

		if checks.Storage == nil || checks.Storage.Ping(ctx) != nil {
			resp.Status = "degraded"
			resp.Storage = "unreachable"
		}
		if checks.Bridge != nil {
			if checks.Bridge.Ping(ctx) != nil {
				resp.Status = "degraded"
				resp.Bridge = "unreachable"
			} else {
				resp.Bridge = "ok"
			}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
