package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// testPolicy returns a RetryPolicy with fast delays for testing
func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func newTestSession(t *testing.T, base *http.Client, baseURL string) *Session {
	t.Helper()
	s, err := NewSession(base, SessionOptions{BaseURL: baseURL, UserAgent: "test-agent"}, testLogger())
	require.NoError(t, err)
	return s
}

func get(s *Session, path string) Attempt {
	return func(ctx context.Context) (*resty.Response, error) {
		return s.R().SetContext(ctx).Get(path)
	}
}

// headerlessTransport answers the first n requests with a response that has
// no headers at all, then delegates.
type headerlessTransport struct {
	remaining atomic.Int32
	calls     atomic.Int32
}

func (h *headerlessTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	h.calls.Add(1)
	if h.remaining.Add(-1) >= 0 {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    req,
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"results":[]}`)),
		Request:    req,
	}, nil
}

func TestFetchWithRetry_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})
			s := newTestSession(t, nil, server.URL)

			resp, err := NewFetcher(testPolicy(3), testLogger()).FetchWithRetry(context.Background(), "ok", get(s, "/"))
			require.NoError(t, err)
			assert.Equal(t, tt.statusCode, resp.StatusCode())
			assert.Equal(t, int32(1), attempts.Load())
		})
	}
}

func TestFetchWithRetry_ServerError_RetrySuccess(t *testing.T) {
	server, attempts := mockServer(t, []int{500, 502, 200})
	s := newTestSession(t, nil, server.URL)

	resp, err := NewFetcher(testPolicy(3), testLogger()).FetchWithRetry(context.Background(), "5xx", get(s, "/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchWithRetry_AllRetriesFail(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"server error", http.StatusServiceUnavailable, utils.ErrServerHTTPError},
		{"rate limited", http.StatusTooManyRequests, utils.ErrClientHTTPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.status})
			s := newTestSession(t, nil, server.URL)

			_, err := NewFetcher(testPolicy(2), testLogger()).FetchWithRetry(context.Background(), "fail", get(s, "/"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrRetryFailed))
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, int32(3), attempts.Load(), "max_retries+1 attempts")
		})
	}
}

func TestFetchWithRetry_ClientError_NoRetry(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusNotFound})
	s := newTestSession(t, nil, server.URL)

	resp, err := NewFetcher(testPolicy(3), testLogger()).FetchWithRetry(context.Background(), "404", get(s, "/"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrClientHTTPError))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchWithRetry_NoHeaders(t *testing.T) {
	t.Run("retried until headers arrive", func(t *testing.T) {
		stub := &headerlessTransport{}
		stub.remaining.Store(2)
		s := newTestSession(t, &http.Client{Transport: stub}, "http://supplier.test")

		resp, err := NewFetcher(testPolicy(5), testLogger()).FetchWithRetry(context.Background(), "headerless", get(s, "/page"))
		require.NoError(t, err)
		assert.Equal(t, `{"results":[]}`, resp.String())
		assert.Equal(t, int32(3), stub.calls.Load())
	})

	t.Run("exhaustion reports missing headers", func(t *testing.T) {
		stub := &headerlessTransport{}
		stub.remaining.Store(100)
		s := newTestSession(t, &http.Client{Transport: stub}, "http://supplier.test")

		_, err := NewFetcher(testPolicy(2), testLogger()).FetchWithRetry(context.Background(), "headerless", get(s, "/page"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, utils.ErrRetryFailed))
		assert.True(t, errors.Is(err, utils.ErrNoHeaders))
		assert.Equal(t, "RetryFailed_NoHeaders", utils.CategorizeError(err))
		assert.Equal(t, int32(3), stub.calls.Load())
	})
}

func TestFetchWithRetry_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	s := newTestSession(t, nil, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(testPolicy(3), testLogger()).FetchWithRetry(ctx, "cancelled", get(s, "/"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetchWithRetry_ContextCancelled_DuringBackoff(t *testing.T) {
	server, _ := mockServer(t, []int{500})
	s := newTestSession(t, nil, server.URL)

	policy := RetryPolicy{MaxRetries: 10, InitialDelay: time.Second, MaxDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewFetcher(policy, testLogger()).FetchWithRetry(ctx, "backoff", get(s, "/"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrServerHTTPError), "last cause is kept")
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFetchWithRetry_NetworkError(t *testing.T) {
	server, _ := mockServer(t, []int{200})
	url := server.URL
	server.Close() // connection refused from here on

	s := newTestSession(t, nil, url)
	_, err := NewFetcher(testPolicy(1), testLogger()).FetchWithRetry(context.Background(), "refused", get(s, "/"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrRetryFailed))
}

func TestBackoff(t *testing.T) {
	f := NewFetcher(RetryPolicy{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}, testLogger())

	for i := 0; i < 20; i++ {
		d1 := f.backoff(1)
		assert.GreaterOrEqual(t, d1, 90*time.Millisecond)
		assert.LessOrEqual(t, d1, 110*time.Millisecond)

		d3 := f.backoff(3) // 400ms capped to 300ms
		assert.GreaterOrEqual(t, d3, 270*time.Millisecond)
		assert.LessOrEqual(t, d3, 330*time.Millisecond)
	}

	assert.Equal(t, time.Duration(0), NewFetcher(RetryPolicy{}, testLogger()).backoff(1))
}
