package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rockmrack/crownsafe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(baseURL string, maxRetries int) *HTTPConnector {
	return NewHTTPConnector(
		config.ConnectorConfig{Agency: "cpsc", BaseURL: baseURL, Path: "/recalls", APIKey: "secret"},
		config.IngestConfig{MaxRetries: maxRetries, RetryInitialBackoff: "1ms", SourceTimeout: "2s"},
	)
}

func TestFetchDecodesBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		assert.NotEmpty(t, r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"recall_id": "R-1"}, {"recall_id": "R-2"}]`))
	}))
	defer srv.Close()

	records, err := newTestConnector(srv.URL, 0).Fetch(context.Background(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "R-1", records[0]["recall_id"])
}

func TestFetchDecodesWrappedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"total": 1, "results": [{"recall_id": "R-1"}]}`))
	}))
	defer srv.Close()

	records, err := newTestConnector(srv.URL, 0).Fetch(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"recall_id": "R-1"}]`))
	}))
	defer srv.Close()

	records, err := newTestConnector(srv.URL, 2).Fetch(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL, 3).Fetch(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "cpsc", fetchErr.Agency)
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL, 2).Fetch(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRejectsMalformedPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"total": 0}`))
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL, 3).Fetch(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "malformed payload")
}

func TestFetchCapsLimitAtPageLimit(t *testing.T) {
	var seenLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	conn := NewHTTPConnector(
		config.ConnectorConfig{Agency: "cpsc", BaseURL: srv.URL, PageLimit: 50},
		config.IngestConfig{},
	)
	_, err := conn.Fetch(context.Background(), time.Now(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, "50", seenLimit)
}
