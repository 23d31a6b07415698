package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clickbait-pipeline/internal/config"
)

// ScorerClient implements ScoringProvider against an HTTP batch scoring API
type ScorerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ ScoringProvider = (*ScorerClient)(nil)

// NewScorerClient builds a client from configuration
func NewScorerClient(cfg config.ScorerConfig) *ScorerClient {
	return &ScorerClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type submitBatchRequest struct {
	Requests []ScoringRequest `json:"requests"`
}

type submitBatchResponse struct {
	BatchID string `json:"batch_id"`
}

// SubmitBatch posts the scoring payload and returns the provider batch ID
func (c *ScorerClient) SubmitBatch(ctx context.Context, requests []ScoringRequest) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", Terminal("submit batch", "scorer client misconfigured")
	}
	if len(requests) == 0 {
		return "", Terminal("submit batch", "empty request set")
	}

	body, err := json.Marshal(submitBatchRequest{Requests: requests})
	if err != nil {
		return "", Terminal("submit batch", fmt.Sprintf("marshal payload: %v", err))
	}

	var resp submitBatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/score-batches", body, &resp); err != nil {
		return "", err
	}
	if resp.BatchID == "" {
		return "", fmt.Errorf("submit batch: provider returned no batch id")
	}
	return resp.BatchID, nil
}

type batchStatusResponse struct {
	Status string `json:"status"`
}

// GetStatus queries the provider for batch progress
func (c *ScorerClient) GetStatus(ctx context.Context, providerBatchID string) (BatchProviderStatus, error) {
	var resp batchStatusResponse
	path := "/v1/score-batches/" + providerBatchID
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}

	switch BatchProviderStatus(resp.Status) {
	case StatusPending, StatusRunning, StatusDone, StatusError:
		return BatchProviderStatus(resp.Status), nil
	}
	return "", fmt.Errorf("get status: unknown provider status %q", resp.Status)
}

type batchResultsResponse struct {
	Results []ScoringResult `json:"results"`
}

// FetchResults downloads the per-article result set for a finished batch
func (c *ScorerClient) FetchResults(ctx context.Context, providerBatchID string) ([]ScoringResult, error) {
	var resp batchResultsResponse
	path := "/v1/score-batches/" + providerBatchID + "/results"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *ScorerClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := fmt.Sprintf("scorer error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
		// 4xx responses other than throttling will not succeed on retry
		if resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusTooManyRequests &&
			resp.StatusCode != http.StatusRequestTimeout {
			return Terminal(method+" "+path, msg)
		}
		return fmt.Errorf("%s", msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode scorer response: %w", err)
	}
	return nil
}
