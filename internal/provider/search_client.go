package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clickbait-pipeline/internal/config"
	"github.com/clickbait-pipeline/internal/models"
)

// SearchClient implements SearchProvider against the news search API
type SearchClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

var _ SearchProvider = (*SearchClient)(nil)

// NewSearchClient builds a client from configuration
func NewSearchClient(cfg config.SearchConfig) *SearchClient {
	return &SearchClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type searchItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PublishedAt string `json:"published_at"`
	AuthorName  string `json:"author_name"`
	AuthorID    string `json:"author_id"`
	Publisher   string `json:"publisher"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

// Search queries the provider for articles matching keyword within the date
// range and returns raw records, newest last. Records with unparseable
// timestamps are dropped here rather than passed downstream.
func (c *SearchClient) Search(ctx context.Context, keyword string, from, to time.Time, limit int) ([]models.RawRecord, error) {
	if c.baseURL == "" || c.clientID == "" {
		return nil, fmt.Errorf("search client misconfigured")
	}

	params := url.Values{}
	params.Set("query", keyword)
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	if limit > 0 {
		params.Set("display", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/news/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("X-Client-Id", c.clientID)
	req.Header.Set("X-Client-Secret", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]models.RawRecord, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
		if err != nil {
			continue
		}
		records = append(records, models.RawRecord{
			Title:            item.Title,
			Content:          item.Description,
			URL:              item.Link,
			PublishedAt:      publishedAt,
			AuthorName:       item.AuthorName,
			PublisherName:    item.Publisher,
			ExternalAuthorID: item.AuthorID,
		})
	}
	return records, nil
}
