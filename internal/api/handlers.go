package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reviewd/reviewd/internal/models"
	"github.com/reviewd/reviewd/internal/queue"
	"github.com/reviewd/reviewd/internal/service"
	"github.com/reviewd/reviewd/internal/store"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	service *service.Service
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := h.service.HealthCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// SubmitReview handles POST /v1/reviews
func (h *Handlers) SubmitReview(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	var req struct {
		Repo        string `json:"repo"`
		PRNumber    int    `json:"pr_number"`
		GitHubToken string `json:"github_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.Warn("invalid request body", "error", err)
		}
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.service.SubmitJob(r.Context(), req.Repo, req.PRNumber, req.GitHubToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("review submitted",
			"job_id", job.ID,
			"repo", req.Repo,
			"pr_number", req.PRNumber)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetStatus handles GET /v1/reviews/{job_id}/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	jobID := chi.URLParam(r, "job_id")

	job, err := h.service.GetStatus(r.Context(), jobID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if logger != nil {
		logger.Debug("status retrieved", "job_id", jobID, "status", job.Status)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetResult handles GET /v1/reviews/{job_id}/result
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := h.service.GetResult(r.Context(), jobID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	}
	switch job.Status {
	case models.StatusSuccess:
		resp["results"] = job.Report
	case models.StatusFailure:
		resp["error"] = job.FailureReason
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := GetLogger(r.Context())

	if logger != nil {
		logger.Error("service error occurred",
			"error", err.Error(),
			"error_type", fmt.Sprintf("%T", err))
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "job not found")
	case errors.Is(err, queue.ErrUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, "queue temporarily unavailable")
	default:
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
