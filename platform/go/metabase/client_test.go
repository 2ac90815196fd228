package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		BaseURL:       srv.URL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "secret",
	})
	return client, srv
}

func sessionHandler(counter *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(counter, 1)
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("session-%d", n)})
	}
}

func TestAuthenticateCoalescesConcurrentRefreshes(t *testing.T) {
	var sessions int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", sessionHandler(&sessions))
	mux.HandleFunc("/api/collection", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	client, _ := newTestClient(t, mux)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.ListCollections(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), atomic.LoadInt64(&sessions),
		"concurrent callers must share one session exchange")
}

func TestExpiredSessionRetriesExactlyOnce(t *testing.T) {
	var sessions, attempts int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", sessionHandler(&sessions))
	mux.HandleFunc("/api/collection/5", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		if r.Header.Get("X-Metabase-Session") == "session-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Collection{ID: 5, Name: "Acme"})
	})
	client, _ := newTestClient(t, mux)

	got, err := client.GetCollection(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 5, got.ID)
	require.Equal(t, int64(2), atomic.LoadInt64(&attempts), "one retry after the 401, no more")
	require.Equal(t, int64(2), atomic.LoadInt64(&sessions))
}

func TestRejectedRequestSurfacesAPIErrorWithoutRetry(t *testing.T) {
	var sessions, attempts int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", sessionHandler(&sessions))
	mux.HandleFunc("/api/collection", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":{"name":"required"}}`))
	})
	client, _ := newTestClient(t, mux)

	_, err := client.CreateCollection(context.Background(), "", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Contains(t, apiErr.Body, "required")
	require.Equal(t, int64(1), atomic.LoadInt64(&attempts), "4xx responses are not retried")
}

func TestListUnwrapsBareArrayAndEnvelope(t *testing.T) {
	var sessions int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", sessionHandler(&sessions))
	mux.HandleFunc("/api/collection", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Root"}]`))
	})
	mux.HandleFunc("/api/database", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":3,"name":"Analytics Database","engine":"postgres"}],"total":1}`))
	})
	client, _ := newTestClient(t, mux)

	collections, err := client.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, collections, 1)
	require.Equal(t, "Root", collections[0].Name)

	databases, err := client.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, databases, 1)
	require.Equal(t, "Analytics Database", databases[0].Name)
}

func TestTransportFailureMarksUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(Config{
		BaseURL:       srv.URL,
		AdminEmail:    "admin@example.com",
		AdminPassword: "secret",
	})

	_, err := client.ListCollections(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCollectionItemsKeepRawPayload(t *testing.T) {
	var sessions int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", sessionHandler(&sessions))
	mux.HandleFunc("/api/collection/10/items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":99,"name":"Sales","model":"dashboard","last_viewed":"2026-01-01"}]}`))
	})
	client, _ := newTestClient(t, mux)

	items, err := client.CollectionItems(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 99, items[0].ID)
	require.Equal(t, "dashboard", items[0].Model)
	require.Contains(t, string(items[0].Raw), "last_viewed")
}
