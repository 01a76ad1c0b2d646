package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/database"
	"github.com/maltedev/ad-product-extractor/internal/events"
	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/scraper"
)

func (m *Manager) worker(ctx context.Context, id int) {
	logger := m.logger.With("worker", id)
	logger.Info("job worker started")

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything pending before waiting for the next tick.
		for ctx.Err() == nil && m.processNext(ctx) {
		}

		select {
		case <-ctx.Done():
			logger.Info("job worker stopping")
			return
		case <-ticker.C:
		}
	}
}

// processNext runs one pending job. It reports whether a job was claimed.
func (m *Manager) processNext(ctx context.Context) bool {
	job, err := m.store.ClaimNext(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Error("failed to claim job", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	m.logger.Info("processing job", "id", job.ID, "url", job.URL, "attempt", job.Attempts)
	m.runJob(ctx, job)
	return true
}

func (m *Manager) runJob(ctx context.Context, job *database.ExtractionJob) {
	rec, err := m.extractor.Extract(ctx, job.URL)
	if err == nil {
		err = m.extractor.CheckRecord(ctx, rec, job.CheckImages)
	}

	if err != nil && ctx.Err() != nil {
		// Left running; ResetStale hands it back to the queue.
		m.logger.Info("job interrupted", "id", job.ID, "url", job.URL, "error", err)
		return
	}
	if err != nil {
		m.fail(ctx, job, rec, err)
		return
	}

	result, err := json.Marshal(rec)
	if err != nil {
		m.fail(ctx, job, nil, err)
		return
	}

	event, err := m.events.Completed(job.ID, rec)
	if err != nil {
		m.fail(ctx, job, rec, err)
		return
	}

	if err := m.store.Complete(ctx, job.ID, result, event); err != nil {
		m.logger.Error("failed to store job result", "id", job.ID, "error", err)
		return
	}

	m.logger.Info("job completed", "id", job.ID, "images", len(rec.Images))
}

func (m *Manager) fail(ctx context.Context, job *database.ExtractionJob, rec *models.ProductRecord, cause error) {
	reason := FailureReason(cause)
	m.logger.Warn("job failed", "id", job.ID, "url", job.URL, "reason", reason, "error", cause)

	var result json.RawMessage
	if rec != nil {
		if data, err := json.Marshal(rec); err == nil {
			result = data
		}
	}

	event, err := m.events.Failed(job.ID, job.URL, reason, cause, rec)
	if err != nil {
		m.logger.Error("failed to build failure event", "id", job.ID, "error", err)
	}

	if err := m.store.Fail(ctx, job.ID, result, cause.Error(), event); err != nil {
		m.logger.Error("failed to store job failure", "id", job.ID, "error", err)
	}
}

// FailureReason maps an extraction error to its event reason.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, scraper.ErrInvalidURL):
		return events.ReasonInvalidURL
	case errors.Is(err, scraper.ErrFetchFailed):
		return events.ReasonFetchFailed
	case errors.Is(err, scraper.ErrValidation):
		return events.ReasonValidation
	default:
		return events.ReasonInternal
	}
}
