package farmapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmsync/internal/domain/models"
)

func TestClient_DoSendsBearerAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/machines", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Tractor", body["name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1,"name":"Tractor"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, nil)
	raw, err := c.Do(context.Background(), http.MethodPost, "/api/machines", "tok", []byte(`{"name":"Tractor"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"Tractor"}`, string(raw))
	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"machines/9: not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Do(context.Background(), http.MethodGet, "/api/machines/9", "", nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "machines/9: not found")
	assert.False(t, IsNetworkError(err))
}

func TestClient_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, nil).Do(context.Background(), http.MethodGet, "/api/animals", "", nil)
	assert.True(t, IsNetworkError(err))
}

func TestClient_UnreachableIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := NewClient(addr, time.Second, nil).Health(context.Background())
	assert.True(t, IsNetworkError(err))
}

func TestClient_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(srv.URL, 5*time.Second, nil).Do(ctx, http.MethodGet, "/api/animals", "", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsNetworkError(err))
}

func TestClient_ChangesAndBulkDocs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync/animals/changes":
			assert.Equal(t, "7", r.URL.Query().Get("since"))
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			_ = json.NewEncoder(w).Encode(models.ChangesResponse{
				Results: []models.Document{{ID: "1", Rev: "1-a", Seq: 8}},
				LastSeq: 8,
			})
		case "/sync/animals/bulk_docs":
			var req models.BulkDocsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			res := models.BulkDocsResponse{}
			for _, d := range req.Docs {
				res.Results = append(res.Results, models.BulkResult{ID: d.ID, Rev: d.Rev, Applied: true})
			}
			_ = json.NewEncoder(w).Encode(res)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	changes, err := c.Changes(ctx, "tok", "animals", 7, 50)
	require.NoError(t, err)
	require.Len(t, changes.Results, 1)
	assert.Equal(t, int64(8), changes.LastSeq)
	assert.False(t, changes.HasMore)

	pushed, err := c.BulkDocs(ctx, "tok", "animals", []models.Document{{ID: "2", Rev: "1-b"}})
	require.NoError(t, err)
	require.Len(t, pushed.Results, 1)
	assert.True(t, pushed.Results[0].Applied)
}

func TestClient_SyncDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, nil).Changes(context.Background(), "bad", "animals", 0, 10)
	assert.ErrorIs(t, err, ErrDenied)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"t-1","user":{"id":1,"username":"admin"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	resp, err := c.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "t-1", resp.Token)
	assert.JSONEq(t, `{"id":1,"username":"admin"}`, string(resp.User))

	_, err = c.Login(context.Background(), "admin", "wrong")
	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)
}
