// Package vectorstore implements the vector index collaborator on Weaviate.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/driftwoodlabs/raggate/retrieval"
)

// documentClass is the Weaviate class holding the indexed document chunks.
// Its metadata properties carry the blob-store key and the public source URL.
const documentClass = "Document"

// WeaviateIndex answers nearest-neighbour queries against the Document
// class. Scores are Weaviate certainties, always in [0,1] regardless of the
// configured distance metric.
type WeaviateIndex struct {
	client *weaviate.Client
}

// Compile-time interface implementation check.
var _ retrieval.VectorIndex = (*WeaviateIndex)(nil)

// NewWeaviateIndex connects to the index at baseURL, e.g.
// "http://weaviate:8080".
func NewWeaviateIndex(baseURL string) (*WeaviateIndex, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL %q: %w", baseURL, err)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	slog.Info("connected to weaviate", "host", parsed.Host)
	return &WeaviateIndex{client: client}, nil
}

// Query runs a nearVector search and maps the hits into retrieval matches.
func (w *WeaviateIndex) Query(ctx context.Context, vector []float32, topK int) ([]retrieval.Match, error) {
	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "s3_key"},
		{Name: "source_url"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(documentClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[documentQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weaviate response: %w", err)
	}

	matches := make([]retrieval.Match, 0, len(parsed.Get.Document))
	for _, doc := range parsed.Get.Document {
		matches = append(matches, retrieval.Match{
			Score:     doc.Additional.Certainty,
			DocKey:    doc.S3Key,
			SourceURL: doc.SourceURL,
		})
	}
	slog.Debug("vector search complete", "requested", topK, "matches", len(matches))
	return matches, nil
}

// documentQueryResponse mirrors the GraphQL response shape for the Document
// class.
type documentQueryResponse struct {
	Get struct {
		Document []documentResult `json:"Document"`
	} `json:"Get"`
}

type documentResult struct {
	S3Key      string `json:"s3_key"`
	SourceURL  string `json:"source_url"`
	Additional struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// ParseGraphQLResponse converts Weaviate's dynamic response payload into a
// typed struct. The target type's json tags must match the response shape;
// mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}
