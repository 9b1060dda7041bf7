// Package handler contains HTTP request handlers for the dispatch API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/middleware"
	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
	"github.com/shiva/ridedispatch/pkg/logger"
)

var validate = validator.New()

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to its status code. Unclassified errors
// are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		writeJSON(w, statusFor(svcErr.Kind), errorBody{Error: svcErr.Code, Message: svcErr.Message})
		return
	}
	logger.Named("handler").Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal server error"})
}

func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindDependency:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into dst and runs its validate tags. It writes
// the 400 response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "request body must be valid JSON"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_failed", Message: err.Error()})
		return false
	}
	return true
}

// actor returns the caller resolved by middleware.Identity.
func actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: "caller identity missing"})
	}
	return a, ok
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, key string) (float64, bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, true, err
}

// ─── Health ─────────────────────────────────────────────────

// HealthCheck checks one backing service.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health returns a handler reporting the state of each backing service.
// Any failing check degrades the status and answers 503.
func Health(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok", Services: make(map[string]string, len(checks))}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				resp.Status = "degraded"
				resp.Services[c.Name] = "unhealthy: " + err.Error()
				continue
			}
			resp.Services[c.Name] = "healthy"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
