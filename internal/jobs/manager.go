package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/database"
	"github.com/maltedev/ad-product-extractor/internal/events"
	"github.com/maltedev/ad-product-extractor/internal/models"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultListLimit    = 50
	MaxListLimit        = 500
	MaxJobsPerRequest   = 100

	// Running jobs older than this at startup belong to a dead worker.
	staleAfter = 15 * time.Minute
)

var ErrInvalidRequest = errors.New("invalid job request")

// Store is the persistence the manager needs. database.JobRepository
// implements it.
type Store interface {
	CreateJobs(ctx context.Context, urls []string, checkImages bool) ([]*database.ExtractionJob, error)
	GetJob(ctx context.Context, id string) (*database.ExtractionJob, error)
	ListJobs(ctx context.Context, status string, limit, offset int) ([]*database.ExtractionJob, error)
	Stats(ctx context.Context) (*database.JobStats, error)
	ClaimNext(ctx context.Context) (*database.ExtractionJob, error)
	Complete(ctx context.Context, id string, result json.RawMessage, event *database.OutboxEvent) error
	Fail(ctx context.Context, id string, result json.RawMessage, cause string, event *database.OutboxEvent) error
	ResetStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type Extractor interface {
	Extract(ctx context.Context, productURL string) (*models.ProductRecord, error)
	CheckRecord(ctx context.Context, rec *models.ProductRecord, checkImages bool) error
}

type Options struct {
	Workers      int
	PollInterval time.Duration
}

type Manager struct {
	store     Store
	extractor Extractor
	events    *events.Builder
	logger    *slog.Logger
	opts      Options
}

func NewManager(store Store, extractor Extractor, builder *events.Builder, opts Options, logger *slog.Logger) *Manager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if builder == nil {
		builder = events.NewBuilder("")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:     store,
		extractor: extractor,
		events:    builder,
		logger:    logger.With("component", "job_manager"),
		opts:      opts,
	}
}

// CreateJobs queues one job per URL. Every URL must be absolute http(s).
func (m *Manager) CreateJobs(ctx context.Context, urls []string, checkImages bool) ([]*database.ExtractionJob, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrInvalidRequest)
	}
	if len(urls) > MaxJobsPerRequest {
		return nil, fmt.Errorf("%w: at most %d urls per request", ErrInvalidRequest, MaxJobsPerRequest)
	}
	for _, u := range urls {
		if !validURL(u) {
			return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidRequest, u)
		}
	}

	jobs, err := m.store.CreateJobs(ctx, urls, checkImages)
	if err != nil {
		return nil, err
	}

	m.logger.Info("jobs created", "count", len(jobs))
	return jobs, nil
}

func (m *Manager) GetJob(ctx context.Context, id string) (*database.ExtractionJob, error) {
	return m.store.GetJob(ctx, id)
}

// ListJobs clamps limit to [1, MaxListLimit]; zero means DefaultListLimit.
func (m *Manager) ListJobs(ctx context.Context, status string, limit, offset int) ([]*database.ExtractionJob, error) {
	switch status {
	case "", database.JobStatusPending, database.JobStatusRunning, database.JobStatusCompleted, database.JobStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return m.store.ListJobs(ctx, status, limit, offset)
}

func (m *Manager) Stats(ctx context.Context) (*database.JobStats, error) {
	return m.store.Stats(ctx)
}

// Start runs the worker pool until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	if n, err := m.store.ResetStale(ctx, time.Now().Add(-staleAfter)); err != nil {
		m.logger.Error("failed to reset stale jobs", "error", err)
	} else if n > 0 {
		m.logger.Warn("requeued stale jobs", "count", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < m.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
