package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/models"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrEmptyURL = errors.New("url is required")
	ErrNotFound = errors.New("entry not found")
)

// Entry tracks one product URL across batch runs.
type Entry struct {
	URL       string                `json:"url"`
	Status    string                `json:"status"`
	Attempts  int                   `json:"attempts"`
	AddedAt   time.Time             `json:"added_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Error     string                `json:"error,omitempty"`
	Record    *models.ProductRecord `json:"record,omitempty"`
}

// ProgressStore is a JSON file of batch entries keyed by URL. Every mutation
// is flushed through a temp file and rename.
type ProgressStore struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	filename string
}

func NewProgressStore(filename string) (*ProgressStore, error) {
	ps := &ProgressStore{
		entries:  make(map[string]*Entry),
		filename: filename,
	}

	if err := ps.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load progress file %s: %w", filename, err)
	}

	return ps, nil
}

// AddURLs registers new URLs as pending. URLs already known keep their state.
// It returns how many were added.
func (ps *ProgressStore) AddURLs(urls []string) (int, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	added := 0
	for i, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := ps.entries[u]; ok {
			continue
		}
		// Offset keeps file order stable when sorting by AddedAt.
		at := now.Add(time.Duration(i) * time.Nanosecond)
		ps.entries[u] = &Entry{URL: u, Status: StatusPending, AddedAt: at, UpdatedAt: at}
		added++
	}

	if added == 0 {
		return 0, nil
	}
	return added, ps.save()
}

func (ps *ProgressStore) Get(rawURL string) (*Entry, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	e, ok := ps.entries[rawURL]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Pending returns URLs still to be processed in the order they were added.
// Entries left in processing by an interrupted run count as pending.
func (ps *ProgressStore) Pending() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var pending []*Entry
	for _, e := range ps.entries {
		if e.Status == StatusPending || e.Status == StatusProcessing {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].AddedAt.Equal(pending[j].AddedAt) {
			return pending[i].URL < pending[j].URL
		}
		return pending[i].AddedAt.Before(pending[j].AddedAt)
	})

	urls := make([]string, len(pending))
	for i, e := range pending {
		urls[i] = e.URL
	}
	return urls
}

func (ps *ProgressStore) MarkProcessing(rawURL string) error {
	return ps.update(rawURL, func(e *Entry) {
		e.Status = StatusProcessing
		e.Attempts++
		e.Error = ""
	})
}

func (ps *ProgressStore) MarkCompleted(rawURL string, rec *models.ProductRecord) error {
	return ps.update(rawURL, func(e *Entry) {
		e.Status = StatusCompleted
		e.Record = rec
		e.Error = ""
	})
}

func (ps *ProgressStore) MarkFailed(rawURL string, cause error) error {
	return ps.update(rawURL, func(e *Entry) {
		e.Status = StatusFailed
		if cause != nil {
			e.Error = cause.Error()
		}
	})
}

// RetryFailed moves failed entries with fewer than maxAttempts back to pending.
func (ps *ProgressStore) RetryFailed(maxAttempts int) (int, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	n := 0
	for _, e := range ps.entries {
		if e.Status == StatusFailed && e.Attempts < maxAttempts {
			e.Status = StatusPending
			e.UpdatedAt = time.Now()
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, ps.save()
}

func (ps *ProgressStore) Stats() map[string]int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	stats := make(map[string]int)
	for _, e := range ps.entries {
		stats[e.Status]++
	}
	stats["total"] = len(ps.entries)
	return stats
}

func (ps *ProgressStore) Load() error {
	data, err := os.ReadFile(ps.filename)
	if err != nil {
		return err
	}

	entries := make(map[string]*Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	ps.mu.Lock()
	ps.entries = entries
	ps.mu.Unlock()
	return nil
}

func (ps *ProgressStore) update(rawURL string, fn func(*Entry)) error {
	if rawURL == "" {
		return ErrEmptyURL
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	e, ok := ps.entries[rawURL]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	fn(e)
	e.UpdatedAt = time.Now()

	return ps.save()
}

func (ps *ProgressStore) save() error {
	data, err := json.MarshalIndent(ps.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := ps.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, ps.filename)
}
