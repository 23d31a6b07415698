package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/provider"
)

func newSearchClient(baseURL string) *provider.SearchClient {
	return provider.NewSearchClient(config.SearchConfig{
		BaseURL:      baseURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      5 * time.Second,
	})
}

func TestSearchClient_Search(t *testing.T) {
	var gotQuery, gotFrom, gotDisplay, gotClientID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/news/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotFrom = r.URL.Query().Get("from")
		gotDisplay = r.URL.Query().Get("display")
		gotClientID = r.Header.Get("X-Client-Id")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]string{
				{
					"title":        "Headline one",
					"description":  "Body one",
					"link":         "https://n.news.naver.com/article/001/0001",
					"published_at": "2025-06-01T09:30:00+09:00",
					"author_name":  "Kim Reporter",
					"author_id":    "reporter-77",
					"publisher":    "Daily News",
				},
				{
					// Unparseable timestamp, dropped by the client
					"title":        "Headline two",
					"link":         "https://n.news.naver.com/article/001/0002",
					"published_at": "yesterday",
				},
			},
		})
	}))
	defer server.Close()

	client := newSearchClient(server.URL)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records, err := client.Search(context.Background(), "논란", from, from.Add(24*time.Hour), 50)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if gotQuery != "논란" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotFrom != "2025-06-01" {
		t.Errorf("from = %q, want 2025-06-01", gotFrom)
	}
	if gotDisplay != "50" {
		t.Errorf("display = %q, want 50", gotDisplay)
	}
	if gotClientID != "client-id" {
		t.Errorf("client id header = %q", gotClientID)
	}

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 after dropping the bad timestamp", len(records))
	}
	rec := records[0]
	if rec.Title != "Headline one" || rec.URL != "https://n.news.naver.com/article/001/0001" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.AuthorName != "Kim Reporter" || rec.ExternalAuthorID != "reporter-77" {
		t.Errorf("author fields not mapped: %+v", rec)
	}
	if rec.PublishedAt.UTC().Hour() != 0 || rec.PublishedAt.UTC().Minute() != 30 {
		t.Errorf("published at = %v, want 00:30 UTC", rec.PublishedAt.UTC())
	}
}

func TestSearchClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newSearchClient(server.URL)
	if _, err := client.Search(context.Background(), "논란", time.Now(), time.Now(), 10); err == nil {
		t.Error("expected an error for a non-2xx response")
	}
}

func TestSearchClient_Misconfigured(t *testing.T) {
	client := provider.NewSearchClient(config.SearchConfig{})

	if _, err := client.Search(context.Background(), "논란", time.Now(), time.Now(), 10); err == nil {
		t.Error("expected an error without base URL and credentials")
	}
}
