package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/maltedev/ad-product-extractor/internal/ratelimit"
	"github.com/maltedev/ad-product-extractor/internal/scraper"
	"github.com/maltedev/ad-product-extractor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, productURL string) (*models.ProductRecord, error) {
	args := m.Called(ctx, productURL)
	rec, _ := args.Get(0).(*models.ProductRecord)
	return rec, args.Error(1)
}

func (m *MockExtractor) CheckRecord(ctx context.Context, rec *models.ProductRecord, checkImages bool) error {
	return m.Called(ctx, rec, checkImages).Error(0)
}

func newRunner(ex *MockExtractor, out *bytes.Buffer) *runner {
	return &runner{
		extractor: ex,
		limiter:   ratelimit.NewHostLimiter(0, 0),
		retries:   1,
		out:       json.NewEncoder(out),
		logger:    slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
}

func decodeResults(t *testing.T, out *bytes.Buffer) []Result {
	t.Helper()
	var results []Result
	dec := json.NewDecoder(out)
	for dec.More() {
		var r Result
		require.NoError(t, dec.Decode(&r))
		results = append(results, r)
	}
	return results
}

func TestReadURLs(t *testing.T) {
	urls, err := readURLs(strings.NewReader("https://a.com/1\n\n# comment\n  https://a.com/2  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/1", "https://a.com/2"}, urls)
}

func TestRunWritesOneLinePerURL(t *testing.T) {
	ex := new(MockExtractor)
	ok := models.NewProductRecord("https://a.com/ok")
	ok.SetTitle("Mug")
	ex.On("Extract", mock.Anything, "https://a.com/ok").Return(ok, nil)
	ex.On("Extract", mock.Anything, "https://a.com/bad").Return(nil, fmt.Errorf("%w: ftp", scraper.ErrInvalidURL))

	var out bytes.Buffer
	failed, err := newRunner(ex, &out).run(context.Background(), []string{"https://a.com/ok", "https://a.com/bad"})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	results := decodeResults(t, &out)
	require.Len(t, results, 2)
	assert.Equal(t, "https://a.com/ok", results[0].URL)
	assert.Equal(t, "Mug", *results[0].Record.Title)
	assert.Contains(t, results[1].Error, "invalid product URL")
	ex.AssertNumberOfCalls(t, "Extract", 2)
}

func TestRunRetriesFetchFailures(t *testing.T) {
	ex := new(MockExtractor)
	rec := models.NewProductRecord("https://a.com/flaky")
	ex.On("Extract", mock.Anything, "https://a.com/flaky").
		Return(nil, fmt.Errorf("%w: 503", scraper.ErrFetchFailed)).Once()
	ex.On("Extract", mock.Anything, "https://a.com/flaky").Return(rec, nil).Once()

	var out bytes.Buffer
	failed, err := newRunner(ex, &out).run(context.Background(), []string{"https://a.com/flaky"})
	require.NoError(t, err)
	assert.Zero(t, failed)

	results := decodeResults(t, &out)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
	ex.AssertExpectations(t)
}

func TestRunValidation(t *testing.T) {
	ex := new(MockExtractor)
	rec := models.NewProductRecord("https://a.com/partial")
	ex.On("Extract", mock.Anything, "https://a.com/partial").Return(rec, nil)
	ex.On("CheckRecord", mock.Anything, rec, true).Return(fmt.Errorf("%w: %w: title", scraper.ErrValidation, models.ErrMissingField))

	var out bytes.Buffer
	r := newRunner(ex, &out)
	r.validate = true
	r.checkImages = true

	failed, err := r.run(context.Background(), []string{"https://a.com/partial"})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	results := decodeResults(t, &out)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Valid)
	assert.False(t, *results[0].Valid)
	assert.NotNil(t, results[0].Record)
}

func TestRunResumesFromProgressFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	progress, err := storage.NewProgressStore(path)
	require.NoError(t, err)

	_, err = progress.AddURLs([]string{"https://a.com/done"})
	require.NoError(t, err)
	require.NoError(t, progress.MarkCompleted("https://a.com/done", models.NewProductRecord("https://a.com/done")))

	ex := new(MockExtractor)
	ex.On("Extract", mock.Anything, "https://a.com/new").Return(models.NewProductRecord("https://a.com/new"), nil)

	var out bytes.Buffer
	r := newRunner(ex, &out)
	r.progress = progress

	failed, err := r.run(context.Background(), []string{"https://a.com/done", "https://a.com/new"})
	require.NoError(t, err)
	assert.Zero(t, failed)
	ex.AssertNotCalled(t, "Extract", mock.Anything, "https://a.com/done")

	e, ok := progress.Get("https://a.com/new")
	require.True(t, ok)
	assert.Equal(t, storage.StatusCompleted, e.Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	ex := new(MockExtractor)
	var out bytes.Buffer
	r := newRunner(ex, &out)
	r.limiter = ratelimit.NewHostLimiter(time.Hour, time.Hour)

	ex.On("Extract", mock.Anything, "https://a.com/1").Return(models.NewProductRecord("https://a.com/1"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.run(ctx, []string{"https://a.com/1", "https://a.com/2"})
	assert.ErrorIs(t, err, errInterrupted)
	ex.AssertNotCalled(t, "Extract", mock.Anything, "https://a.com/2")
}

func TestRunInterruptedURLStaysResumable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	progress, err := storage.NewProgressStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := new(MockExtractor)
	ex.On("Extract", mock.Anything, "https://a.com/slow").Run(func(mock.Arguments) { cancel() }).
		Return(nil, fmt.Errorf("extraction interrupted: %w", context.Canceled))

	var out bytes.Buffer
	r := newRunner(ex, &out)
	r.progress = progress

	_, err = r.run(ctx, []string{"https://a.com/slow"})
	assert.ErrorIs(t, err, errInterrupted)

	e, ok := progress.Get("https://a.com/slow")
	require.True(t, ok)
	assert.Equal(t, storage.StatusProcessing, e.Status)
	assert.Equal(t, []string{"https://a.com/slow"}, progress.Pending())
}
