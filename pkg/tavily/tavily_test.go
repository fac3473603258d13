package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchSendsRequestAndDecodes(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"query":"go jobs","results":[
			{"title":"A","url":"https://a","content":"first","score":0.9},
			{"title":"B","url":"https://b","content":"second"},
			{"title":"C","url":"https://c","content":"third"}]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL + "/", MaxResults: 2})
	resp, err := c.Search(context.Background(), Request{Query: "  go jobs "})
	require.NoError(t, err)

	assert.Equal(t, "go jobs", got["query"])
	assert.Equal(t, "k", got["api_key"])
	assert.Equal(t, "basic", got["search_depth"])
	assert.Equal(t, "general", got["topic"])
	assert.Equal(t, 2.0, got["max_results"])

	require.Len(t, resp.Results, 2)
	assert.Equal(t, Result{Title: "A", URL: "https://a", Content: "first", Score: 0.9}, resp.Results[0])
}

func TestSearchRequiresKeyAndQuery(t *testing.T) {
	_, err := New(Config{}).Search(context.Background(), Request{Query: "x"})
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	_, err = New(Config{APIKey: "k"}).Search(context.Background(), Request{Query: "  "})
	assert.Error(t, err)
}

func TestSearchRetriesOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL, Backoff: time.Millisecond})
	_, err := c.Search(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", BaseURL: srv.URL, Backoff: time.Millisecond, MaxRetries: 2})
	_, err := c.Search(context.Background(), Request{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearchReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(Config{APIKey: "k", BaseURL: srv.URL}).Search(context.Background(), Request{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}
