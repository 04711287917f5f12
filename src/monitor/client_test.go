package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

const sampleBody = `{
	"boundaries": [0.001, 0.002, 0.004, "+Inf"],
	"threadPerfLog": [
		{"ts": 1700000000000, "type": "data", "players": 4, "perf": {"count": 6, "sum": 0.01, "buckets": [3, 2, 1, 0]}}
	]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, Token: "secret"})
}

func TestClientFetchPerfChartSuccess(t *testing.T) {
	var gotPath, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleBody))
	})
	d, err := c.FetchPerfChart(context.Background(), types.ThreadNetwork)
	require.NoError(t, err)
	assert.Equal(t, "/perfChartData/svNetwork/", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, d.Boundaries, 4)
	require.Len(t, d.ThreadPerfLog, 1)
	assert.Equal(t, 4, d.ThreadPerfLog[0].Players)
}

func TestClientFailReasonBecomesBackendAPIError(t *testing.T) {
	codes := []string{CodeBadRequest, CodeInvalidThreadName, CodeDataUnavailable, CodeNotEnoughData, "server_on_fire"}
	for _, code := range codes {
		code := code
		t.Run(code, func(t *testing.T) {
			status := http.StatusOK
			if code == CodeBadRequest {
				status = http.StatusBadRequest
			}
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"fail_reason":"` + code + `"}`))
			})
			_, err := c.FetchPerfChart(context.Background(), types.ThreadMain)
			be, ok := AsBackendAPIError(err)
			require.True(t, ok, "want BackendAPIError, got %v", err)
			assert.Equal(t, code, be.Code)
			assert.Equal(t, status, be.StatusCode)
			assert.Equal(t, code != "server_on_fire", be.Known())
			assert.False(t, retryable(err))
		})
	}
}

func TestClientHTTPErrorWithoutReason(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	_, err := c.FetchPerfChart(context.Background(), types.ThreadSync)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadGateway, he.StatusCode)
	assert.Contains(t, err.Error(), "upstream down")
	assert.True(t, retryable(err))
	_, isBackend := AsBackendAPIError(err)
	assert.False(t, isBackend)
}

func TestClientGenericErrorField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"session expired"}`))
	})
	_, err := c.FetchPerfChart(context.Background(), types.ThreadMain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expired")
	_, isBackend := AsBackendAPIError(err)
	assert.False(t, isBackend)
}

func TestClientRejectsMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"boundaries": ["-Inf"], "threadPerfLog": []}`))
	})
	_, err := c.FetchPerfChart(context.Background(), types.ThreadMain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode perf chart data")
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, retryable(nil))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(&HTTPError{StatusCode: 404}))
	assert.True(t, retryable(&HTTPError{StatusCode: 503}))
	assert.True(t, retryable(&HTTPError{StatusCode: 429}))
	assert.True(t, isTransientNetErr(errors.New("read: connection reset by peer")))
	assert.False(t, isTransientNetErr(context.DeadlineExceeded))
}
