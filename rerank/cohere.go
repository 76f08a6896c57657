// Package rerank reorders retrieved documents by relevance to the query
// using Cohere's rerank endpoint.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/driftwoodlabs/raggate/config"
	"github.com/driftwoodlabs/raggate/retrieval"
)

const defaultBaseURL = "https://api.cohere.ai/v1"

// CohereReranker scores documents against the query and returns their
// indices in descending relevance order.
type CohereReranker struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ retrieval.Reranker = (*CohereReranker)(nil)

// NewCohereReranker requires an API key. Callers that have no key should
// skip construction entirely and run the pipeline without a reranker.
func NewCohereReranker(cfg config.CohereConfig) (*CohereReranker, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cohere API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &CohereReranker{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Rerank returns at most topN indices into documents, most relevant first.
func (c *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topN int) ([]int, error) {
	reqBody, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		TopN:      topN,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	indices := make([]int, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		indices = append(indices, r.Index)
	}
	slog.Debug("rerank complete", "documents", len(documents), "returned", len(indices))
	return indices, nil
}
