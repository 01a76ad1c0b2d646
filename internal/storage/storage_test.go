package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/ad-product-extractor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*ProgressStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progress.json")
	ps, err := NewProgressStore(path)
	require.NoError(t, err)
	return ps, path
}

func TestAddURLsSkipsKnown(t *testing.T) {
	ps, _ := newStore(t)

	n, err := ps.AddURLs([]string{"https://a.com/1", "https://a.com/2", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, ps.MarkProcessing("https://a.com/1"))
	n, err = ps.AddURLs([]string{"https://a.com/1", "https://a.com/3"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, ok := ps.Get("https://a.com/1")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, e.Status)
	assert.Equal(t, 1, e.Attempts)
}

func TestPendingOrderAndResume(t *testing.T) {
	ps, path := newStore(t)
	urls := []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}
	_, err := ps.AddURLs(urls)
	require.NoError(t, err)

	rec := models.NewProductRecord("https://a.com/1")
	rec.SetTitle("Lamp")
	require.NoError(t, ps.MarkProcessing("https://a.com/1"))
	require.NoError(t, ps.MarkCompleted("https://a.com/1", rec))
	require.NoError(t, ps.MarkProcessing("https://a.com/2"))

	reopened, err := NewProgressStore(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/2", "https://a.com/3"}, reopened.Pending())

	e, ok := reopened.Get("https://a.com/1")
	require.True(t, ok)
	require.NotNil(t, e.Record)
	assert.Equal(t, "Lamp", *e.Record.Title)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestMarkFailedAndRetry(t *testing.T) {
	ps, _ := newStore(t)
	_, err := ps.AddURLs([]string{"https://a.com/1", "https://a.com/2"})
	require.NoError(t, err)

	for _, u := range []string{"https://a.com/1", "https://a.com/2"} {
		require.NoError(t, ps.MarkProcessing(u))
		require.NoError(t, ps.MarkFailed(u, errors.New("timeout")))
	}
	require.NoError(t, ps.MarkProcessing("https://a.com/2"))
	require.NoError(t, ps.MarkFailed("https://a.com/2", errors.New("timeout")))

	e, _ := ps.Get("https://a.com/1")
	assert.Equal(t, "timeout", e.Error)

	n, err := ps.RetryFailed(2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"https://a.com/1"}, ps.Pending())

	stats := ps.Stats()
	assert.Equal(t, 1, stats[StatusPending])
	assert.Equal(t, 1, stats[StatusFailed])
	assert.Equal(t, 2, stats["total"])
}

func TestUpdateUnknown(t *testing.T) {
	ps, _ := newStore(t)
	assert.ErrorIs(t, ps.MarkProcessing("https://nope.com"), ErrNotFound)
	assert.ErrorIs(t, ps.MarkProcessing(""), ErrEmptyURL)
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewProgressStore(path)
	assert.Error(t, err)
}
