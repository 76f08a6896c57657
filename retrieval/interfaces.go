// Package retrieval turns a user utterance into grounding text and source
// citations through a multi-stage external pipeline: embed, vector search,
// score filter, document fetch, and conditional rerank.
package retrieval

import (
	"context"
	"errors"
)

// Match is one vector-index hit. It exists only for the duration of a turn.
type Match struct {
	// Score is the index's similarity for this match, in [0,1].
	Score float64

	// DocKey locates the full document text in the blob store.
	DocKey string

	// SourceURL is the public citation for the document.
	SourceURL string
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex answers nearest-neighbour queries over the document index.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// ErrNotFound is returned by DocumentStore.Get for unknown keys.
var ErrNotFound = errors.New("document not found")

// DocumentStore fetches full document text by key.
type DocumentStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// Reranker reorders documents by relevance to the query, returning the
// indices of the top-n documents in ranked order.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]int, error)
}

// Stage names reported through the StageNotifier.
type Stage string

const (
	StageEmbedding Stage = "embedding"
	StageSearching Stage = "searching"
)

// StageNotifier is called at stage boundaries so the protocol layer can emit
// progress notifications. It must not block.
type StageNotifier func(stage Stage)
