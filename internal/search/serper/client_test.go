package serper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", Endpoint: srv.URL, QPS: 1000}, zap.NewNop())
}

func organicPage(n, offset int) map[string]any {
	var organic []map[string]any
	for i := 0; i < n; i++ {
		organic = append(organic, map[string]any{
			"title":    fmt.Sprintf("Result %d", offset+i+1),
			"link":     fmt.Sprintf("https://site%d.example/", offset+i+1),
			"snippet":  "snippet",
			"position": i + 1,
		})
	}
	return map[string]any{"organic": organic}
}

func TestSearchFirstPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "acme shoes", req.Query)
		require.Equal(t, 10, req.Num)
		require.Equal(t, 1, req.Page)

		require.NoError(t, json.NewEncoder(w).Encode(organicPage(10, 0)))
	})

	page, err := client.Search(context.Background(), "acme shoes", "")
	require.NoError(t, err)
	require.Len(t, page.Results, 10)
	require.Equal(t, "https://site1.example/", page.Results[0].URL)
	require.Equal(t, 1, page.Results[0].Rank)
	require.Equal(t, "2", page.NextPageToken, "a full page implies more results")
}

func TestSearchSecondPageRanks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 2, req.Page)
		require.NoError(t, json.NewEncoder(w).Encode(organicPage(3, 10)))
	})

	page, err := client.Search(context.Background(), "acme", "2")
	require.NoError(t, err)
	require.Len(t, page.Results, 3)
	require.Equal(t, 11, page.Results[0].Rank, "ranks continue across pages")
	require.Empty(t, page.NextPageToken, "a short page ends pagination")
}

func TestSearchUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := client.Search(context.Background(), "acme", "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSearchServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Search(context.Background(), "acme", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestSearchBadPageToken(t *testing.T) {
	client := New(Config{APIKey: "k"}, zap.NewNop())
	_, err := client.Search(context.Background(), "acme", "not-a-number")
	require.Error(t, err)
}

func TestSearchSkipsResultsWithoutLinks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organic":[{"title":"no link"},{"title":"ok","link":"https://a.example/"}]}`))
	})

	page, err := client.Search(context.Background(), "acme", "")
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, "https://a.example/", page.Results[0].URL)
}
