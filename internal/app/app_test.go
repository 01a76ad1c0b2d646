package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maltedev/ad-product-extractor/internal/config"
	"github.com/maltedev/ad-product-extractor/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><meta property="og:title" content="Chair"></head></html>`))
	}))
	defer srv.Close()

	cfg, err := config.Load()
	require.NoError(t, err)

	p, err := NewPipeline(cfg, logger.New("error", "text"))
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Gate)
	rec, err := p.Extractor.Extract(context.Background(), srv.URL+"/chair")
	require.NoError(t, err)
	assert.Equal(t, "Chair", *rec.Title)
	assert.Empty(t, rec.Images)
}

func TestNewPipelineAmazonOptIn(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	p, err := NewPipeline(cfg, logger.New("error", "text"))
	require.NoError(t, err)
	assert.NotContains(t, p.Extractor.StrategyNames(), "amazon")
	require.NoError(t, p.Close())

	cfg.Extract.Amazon = true
	p, err = NewPipeline(cfg, logger.New("error", "text"))
	require.NoError(t, err)
	defer p.Close()

	names := p.Extractor.StrategyNames()
	assert.Contains(t, names, "amazon")
	assert.Contains(t, names, "generic_selectors")
}
