package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/ad-product-extractor/internal/jobs"
	"github.com/maltedev/ad-product-extractor/internal/queue"
	"github.com/maltedev/ad-product-extractor/internal/ratelimit"
	"github.com/maltedev/ad-product-extractor/internal/scraper"
	"github.com/maltedev/ad-product-extractor/internal/storage"
)

type runner struct {
	extractor   jobs.Extractor
	limiter     *ratelimit.HostLimiter
	progress    *storage.ProgressStore
	validate    bool
	checkImages bool
	retries     int
	queueSize   int
	out         *json.Encoder
	logger      *slog.Logger
}

// run extracts every URL once, requeueing fetch failures up to r.retries
// times. It returns the number of URLs that ended in failure.
func (r *runner) run(ctx context.Context, urls []string) (int, error) {
	if r.progress != nil {
		if _, err := r.progress.AddURLs(urls); err != nil {
			return 0, fmt.Errorf("failed to record urls: %w", err)
		}
		if n, err := r.progress.RetryFailed(r.retries + 1); err != nil {
			return 0, fmt.Errorf("failed to requeue failed urls: %w", err)
		} else if n > 0 {
			r.logger.Info("retrying failed urls from previous run", "count", n)
		}
		urls = r.progress.Pending()
		r.logger.Info("resuming batch", "pending", len(urls), "stats", r.progress.Stats())
	}

	q := queue.NewInMemoryQueue(0)
	for _, u := range urls {
		if err := q.Push(queue.NewTask(u, 0)); err != nil {
			return 0, err
		}
	}
	if r.queueSize > 0 && q.Size() > r.queueSize {
		r.logger.Warn("batch larger than configured queue size", "size", q.Size(), "queue_size", r.queueSize)
	}

	failed := 0
	for q.Size() > 0 {
		task, err := q.Pop(ctx)
		if err != nil {
			return failed, err
		}

		res, retry := r.process(ctx, task)
		if ctx.Err() != nil {
			return failed, errInterrupted
		}

		if retry && task.Attempts < r.retries {
			r.logger.Info("requeueing url", "url", task.URL, "attempt", task.Attempts+1)
			if err := q.Requeue(task); err == nil {
				continue
			}
		}

		if res.Error != "" {
			failed++
		}
		if err := r.out.Encode(res); err != nil {
			return failed, fmt.Errorf("failed to write result: %w", err)
		}
	}

	q.Close()
	return failed, nil
}

// process extracts one task. retry reports whether a transient fetch
// failure is worth another attempt.
func (r *runner) process(ctx context.Context, task *queue.Task) (Result, bool) {
	res := Result{URL: task.URL}
	limiter := r.limiter.For(task.URL)

	if err := limiter.Wait(ctx); err != nil {
		res.Error = err.Error()
		return res, false
	}
	r.mark(func(p *storage.ProgressStore) error { return p.MarkProcessing(task.URL) })

	rec, err := r.extractor.Extract(ctx, task.URL)
	if err != nil && ctx.Err() != nil {
		// Still processing in the progress file, so the next run resumes it.
		res.Error = err.Error()
		return res, false
	}
	if err != nil {
		res.Error = err.Error()
		fetchFailed := errors.Is(err, scraper.ErrFetchFailed)
		if fetchFailed {
			limiter.RecordError()
		}
		r.mark(func(p *storage.ProgressStore) error { return p.MarkFailed(task.URL, err) })
		r.logger.Warn("extraction failed", "url", task.URL, "error", err)
		return res, fetchFailed
	}
	limiter.RecordSuccess()
	res.Record = rec

	if r.validate {
		valid := true
		if err := r.extractor.CheckRecord(ctx, rec, r.checkImages); err != nil {
			valid = false
			res.Error = err.Error()
			r.mark(func(p *storage.ProgressStore) error { return p.MarkFailed(task.URL, err) })
		}
		res.Valid = &valid
		if !valid {
			return res, false
		}
	}

	r.mark(func(p *storage.ProgressStore) error { return p.MarkCompleted(task.URL, rec) })
	r.logger.Info("extracted", "url", task.URL, "images", len(rec.Images))
	return res, false
}

func (r *runner) mark(fn func(*storage.ProgressStore) error) {
	if r.progress == nil {
		return
	}
	if err := fn(r.progress); err != nil {
		r.logger.Error("failed to update progress file", "error", err)
	}
}
