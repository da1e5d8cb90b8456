package observability

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	serviceName    = "voice-companion"
	serviceVersion = "1.0.0"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	Version      string `json:"version"`
	Timestamp    string `json:"timestamp"`
	SessionState string `json:"session_state,omitempty"`
}

// HealthCheckHandler handles health check requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   serviceVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

// StateFunc reports the current live session state and whether the
// process can accept a new session.
// It is passed in rather than imported to avoid import cycles.
type StateFunc func() (state string, ready bool)

// ReadinessHandler handles readiness check requests
func ReadinessHandler(stateFn StateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "ready",
			Service:   serviceName,
			Version:   serviceVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		ready := true
		if stateFn != nil {
			status.SessionState, ready = stateFn()
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			status.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}
