package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint. A failing fanout degrades
// the instance (broadcasts may be lost) but the log check is the one
// that matters for durability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	logStart := time.Now()
	if err := h.log.Ping(ctx); err != nil {
		checks["log"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["log"] = Check{Status: "pass", Latency: time.Since(logStart).String()}
	}

	fanStart := time.Now()
	if err := h.fan.Ping(ctx); err != nil {
		checks["fanout"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["fanout"] = Check{Status: "pass", Latency: time.Since(fanStart).String()}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
