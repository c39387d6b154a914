package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "test-engine", q.Get("cx"))
		assert.Equal(t, "firmy brukarskie Kraków", q.Get("q"))
		assert.Equal(t, "10", q.Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResponse{
			Items: []Item{
				{Title: "Brukpol", Link: "https://brukpol.pl", Snippet: "usługi brukarskie"},
				{Title: "Oferteo", Link: "https://oferteo.pl/brukarze", Snippet: "znajdź wykonawcę"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-engine", WithBaseURL(srv.URL))
	items, err := client.Search(context.Background(), "firmy brukarskie Kraków", 10)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Brukpol", items[0].Title)
	assert.Equal(t, "https://oferteo.pl/brukarze", items[1].Link)
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-engine", WithBaseURL(srv.URL))
	items, err := client.Search(context.Background(), "nonexistent query", 10)

	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSearch_QuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exceeded"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", "test-engine", WithBaseURL(srv.URL))
	items, err := client.Search(context.Background(), "test", 10)

	assert.Error(t, err)
	assert.Nil(t, items)
	assert.Contains(t, err.Error(), "429")
}

func TestSearch_MissingCredentials(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Search(context.Background(), "test", 10)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")
}

func TestSearch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", "test-engine", WithBaseURL(srv.URL))
	_, err := client.Search(ctx, "test", 10)
	assert.Error(t, err)
}
