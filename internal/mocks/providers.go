package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/clickbait-pipeline/internal/models"
	"github.com/clickbait-pipeline/internal/provider"
)

// MockScoringProvider is a configurable fake scoring service
type MockScoringProvider struct {
	mu sync.Mutex

	NextBatchID string
	SubmitErr   error
	Status      provider.BatchProviderStatus
	StatusErr   error
	Results     []provider.ScoringResult
	ResultsErr  error

	SubmitCalls   int
	StatusCalls   int
	ResultsCalls  int
	LastSubmitted []provider.ScoringRequest
}

func NewMockScoringProvider() *MockScoringProvider {
	return &MockScoringProvider{
		NextBatchID: "provider-batch-1",
		Status:      provider.StatusPending,
	}
}

func (m *MockScoringProvider) SubmitBatch(ctx context.Context, requests []provider.ScoringRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SubmitCalls++
	m.LastSubmitted = requests
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	return m.NextBatchID, nil
}

func (m *MockScoringProvider) GetStatus(ctx context.Context, providerBatchID string) (provider.BatchProviderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StatusCalls++
	if m.StatusErr != nil {
		return "", m.StatusErr
	}
	return m.Status, nil
}

func (m *MockScoringProvider) FetchResults(ctx context.Context, providerBatchID string) ([]provider.ScoringResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResultsCalls++
	if m.ResultsErr != nil {
		return nil, m.ResultsErr
	}
	return m.Results, nil
}

// MockSearchProvider is a configurable fake news search service
type MockSearchProvider struct {
	Records   map[string][]models.RawRecord
	SearchErr error

	SearchCalls int
}

func NewMockSearchProvider() *MockSearchProvider {
	return &MockSearchProvider{
		Records: make(map[string][]models.RawRecord),
	}
}

func (m *MockSearchProvider) Search(ctx context.Context, keyword string, from, to time.Time, limit int) ([]models.RawRecord, error) {
	m.SearchCalls++
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	records := m.Records[keyword]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
