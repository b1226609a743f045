package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.DocumentFetched("static", "ok")
	m.DocumentFetched("static", "ok")
	m.DocumentFetched("rendered", "empty")
	m.FetchRetry("static")
	m.ProviderError("bing")
	m.ResultFound("MEDIUM")
	m.NlpFallback()

	body := scrape(t, m)
	assert.Contains(t, body, `fineprint_documents_fetched_total{status="ok",tier="static"} 2`)
	assert.Contains(t, body, `fineprint_documents_fetched_total{status="empty",tier="rendered"} 1`)
	assert.Contains(t, body, `fineprint_fetch_retries_total{tier="static"} 1`)
	assert.Contains(t, body, `fineprint_provider_errors_total{provider="bing"} 1`)
	assert.Contains(t, body, `fineprint_results_found_total{label="MEDIUM"} 1`)
	assert.Contains(t, body, `fineprint_nlp_fallbacks_total 1`)
}

func TestMetrics_RunStateIsExclusive(t *testing.T) {
	m := NewMetrics()

	m.SetRunState("fetching")
	m.SetRunState("analyzing")

	body := scrape(t, m)
	assert.Contains(t, body, `fineprint_run_state{state="analyzing"} 1`)
	assert.Contains(t, body, `fineprint_run_state{state="fetching"} 0`)
	assert.Contains(t, body, `fineprint_run_state{state="idle"} 0`)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.DocumentFetched("static", "ok")
		m.FetchRetry("static")
		m.ProviderError("bing")
		m.QueryRun("bing")
		m.ResultFound("LOW")
		m.NlpFallback()
		m.SetRunState("idle")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", false)
	logger.Debug("hidden")
	logger.Info("shown", "url", "https://example.com")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"url":"https://example.com"`)

	buf.Reset()
	NewLogger(&buf, "text", true).Debug("visible")
	assert.Contains(t, buf.String(), "level=DEBUG")
}
