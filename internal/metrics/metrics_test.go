// ABOUTME: Tests for Prometheus instrumentation
// ABOUTME: Scrapes the handler and checks exported series
package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/mp3rec/pkg/audio/encode"
)

var _ encode.Metrics = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSessionMetrics(t *testing.T) {
	m := New()

	m.SessionStarted()
	m.FrameEncoded(4096)
	m.FrameEncoded(4096)
	m.SessionFinished(encode.OutcomeCompleted, 20000, 3*time.Second)
	m.Failure("encoding_failed")

	body := scrape(t, m)
	assert.Contains(t, body, "mp3rec_sessions_started_total 1")
	assert.Contains(t, body, "mp3rec_frames_encoded_total 2")
	assert.Contains(t, body, "mp3rec_samples_encoded_total 8192")
	assert.Contains(t, body, `mp3rec_sessions_finished_total{outcome="completed"} 1`)
	assert.Contains(t, body, `mp3rec_failures_total{reason="encoding_failed"} 1`)
	assert.Contains(t, body, "mp3rec_output_bytes_count 1")
	assert.Contains(t, body, "mp3rec_session_duration_seconds_sum 3")
}

func TestFailedSessionSkipsSizeHistogram(t *testing.T) {
	m := New()
	m.SessionFinished(encode.OutcomeFailed, 0, time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `mp3rec_sessions_finished_total{outcome="failed"} 1`)
	assert.Contains(t, body, "mp3rec_output_bytes_count 0")
}

func TestConnectionGauge(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	body := scrape(t, m)
	assert.Contains(t, body, "mp3rec_active_connections 1")
	assert.Contains(t, body, "mp3rec_connections_total 2")
}
