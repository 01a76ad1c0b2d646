package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/ad-product-extractor/internal/database"
	"github.com/maltedev/ad-product-extractor/internal/jobs"
	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/ratelimit"
	"github.com/maltedev/ad-product-extractor/internal/scraper"
)

const maxBodyBytes = 1 << 20

// Outbox health thresholds reported by /health.
const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type JobService interface {
	CreateJobs(ctx context.Context, urls []string, checkImages bool) ([]*database.ExtractionJob, error)
	GetJob(ctx context.Context, id string) (*database.ExtractionJob, error)
	ListJobs(ctx context.Context, status string, limit, offset int) ([]*database.ExtractionJob, error)
	Stats(ctx context.Context) (*database.JobStats, error)
}

type OutboxStatus interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	extractor jobs.Extractor
	jobs      JobService
	outbox    OutboxStatus
	limiter   *ratelimit.TokenBucketRateLimiter
	logger    *slog.Logger
}

// NewHandlers wires the HTTP surface. jobs, outbox and limiter may be nil:
// job routes then answer 503 and /extract is unthrottled.
func NewHandlers(extractor jobs.Extractor, jobSvc JobService, outbox OutboxStatus, limiter *ratelimit.TokenBucketRateLimiter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		extractor: extractor,
		jobs:      jobSvc,
		outbox:    outbox,
		limiter:   limiter,
		logger:    logger.With("component", "api"),
	}
}

type ExtractRequest struct {
	URL         string `json:"url"`
	Validate    bool   `json:"validate"`
	CheckImages bool   `json:"check_images"`
}

type ExtractResponse struct {
	Record *models.ProductRecord `json:"record"`
	Valid  *bool                 `json:"valid,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// Extract runs one synchronous extraction.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.respondError(w, http.StatusTooManyRequests, "too many extraction requests")
		return
	}

	var req ExtractRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := h.extractor.Extract(r.Context(), req.URL)
	if err != nil {
		status := extractStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("extraction failed", "url", req.URL, "error", err)
		}
		h.respondError(w, status, err.Error())
		return
	}

	resp := ExtractResponse{Record: rec}
	if req.Validate || req.CheckImages {
		valid := true
		if err := h.extractor.CheckRecord(r.Context(), rec, req.CheckImages); err != nil {
			valid = false
			resp.Valid = &valid
			resp.Error = err.Error()
			h.respondJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		resp.Valid = &valid
	}

	h.respondJSON(w, http.StatusOK, resp)
}

type CreateJobsRequest struct {
	URLs        []string `json:"urls"`
	CheckImages bool     `json:"check_images"`
}

type CreateJobsResponse struct {
	Jobs    []*database.ExtractionJob `json:"jobs"`
	Message string                    `json:"message"`
}

func (h *Handlers) CreateJobs(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	var req CreateJobsRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.jobs.CreateJobs(r.Context(), req.URLs, req.CheckImages)
	if err != nil {
		h.respondJobError(w, err, "failed to create jobs")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobsResponse{
		Jobs:    created,
		Message: strconv.Itoa(len(created)) + " job(s) queued",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondJobError(w, err, "failed to get job")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs supports ?status=, ?limit= and ?offset=.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	list, err := h.jobs.ListJobs(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		h.respondJobError(w, err, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Health reports outbox backlog. A large dead-letter count fails the check.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, pErr := h.outbox.PendingCount(r.Context())
		dead, dErr := h.outbox.DeadLetterCount(r.Context())
		if err := errors.Join(pErr, dErr); err != nil {
			h.logger.Error("failed to read outbox status", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "error",
				"message": "outbox status unavailable",
			})
			return
		}

		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": dead,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if dead > deadLetterFailThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func extractStatus(err error) int {
	switch {
	case errors.Is(err, scraper.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, scraper.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, scraper.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondJobError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	default:
		h.logger.Error(fallback, "error", err)
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handlers) jobsEnabled(w http.ResponseWriter) bool {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "job processing is not configured")
		return false
	}
	return true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
