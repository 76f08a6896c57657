package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/driftwoodlabs/raggate/config"
)

// ----------------------------------------------------------------------------
// Mock collaborators
// ----------------------------------------------------------------------------

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2}, nil
}

type mockIndex struct {
	matches []Match
	err     error
}

func (m *mockIndex) Query(_ context.Context, _ []float32, _ int) ([]Match, error) {
	return m.matches, m.err
}

type mockDocs struct {
	texts   map[string]string
	missing map[string]bool
}

func (m *mockDocs) Get(_ context.Context, key string) (string, error) {
	if m.missing[key] {
		return "", ErrNotFound
	}
	text, ok := m.texts[key]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

type mockReranker struct {
	order  []int
	err    error
	called bool
	gotDoc []string
}

func (m *mockReranker) Rerank(_ context.Context, _ string, docs []string, _ int) ([]int, error) {
	m.called = true
	m.gotDoc = docs
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func matchFixture(n int, scores ...float64) ([]Match, *mockDocs) {
	matches := make([]Match, n)
	docs := &mockDocs{texts: map[string]string{}, missing: map[string]bool{}}
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("doc-%d", i)
		matches[i] = Match{
			Score:     scores[i],
			DocKey:    key,
			SourceURL: fmt.Sprintf("https://example.com/%d", i),
		}
		docs.texts[key] = fmt.Sprintf("text-%d", i)
	}
	return matches, docs
}

func newTestPipeline(index VectorIndex, docs DocumentStore, reranker Reranker) *Pipeline {
	return NewPipeline(&mockEmbedder{}, index, docs, reranker, config.DefaultRetrieval())
}

// ----------------------------------------------------------------------------
// Tests
// ----------------------------------------------------------------------------

func TestRetrieve_ScoreFilterAndCitations(t *testing.T) {
	// Scores per the contract scenario: exactly three pass the 0.75 bar.
	matches, docs := matchFixture(5, 0.9, 0.8, 0.7, 0.6, 0.95)
	p := newTestPipeline(&mockIndex{matches: matches}, docs, nil)

	g, err := p.Retrieve(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}

	wantContext := "text-0\ntext-1\ntext-4"
	if g.Context != wantContext {
		t.Errorf("grounding context = %q, want %q", g.Context, wantContext)
	}
	wantSources := []string{"https://example.com/0", "https://example.com/1", "https://example.com/4"}
	if len(g.Sources) != len(wantSources) {
		t.Fatalf("sources = %v, want %v", g.Sources, wantSources)
	}
	for i := range wantSources {
		if g.Sources[i] != wantSources[i] {
			t.Errorf("sources[%d] = %s, want %s", i, g.Sources[i], wantSources[i])
		}
	}
	if g.Documents != 3 {
		t.Errorf("documents = %d, want 3", g.Documents)
	}
}

func TestRetrieve_BoundaryScoreExcluded(t *testing.T) {
	matches, docs := matchFixture(2, 0.75, 0.76)
	p := newTestPipeline(&mockIndex{matches: matches}, docs, nil)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if g.Context != "text-1" {
		t.Errorf("score exactly at the threshold must be excluded, got context %q", g.Context)
	}
	if len(g.Sources) != 1 {
		t.Errorf("expected single citation, got %v", g.Sources)
	}
}

func TestRetrieve_CitationsDeduplicated(t *testing.T) {
	matches, docs := matchFixture(3, 0.9, 0.9, 0.9)
	matches[1].SourceURL = matches[0].SourceURL
	p := newTestPipeline(&mockIndex{matches: matches}, docs, nil)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(g.Sources) != 2 {
		t.Errorf("expected deduplicated sources, got %v", g.Sources)
	}
}

func TestRetrieve_FetchFailureDropsDocumentKeepsCitation(t *testing.T) {
	matches, docs := matchFixture(2, 0.9, 0.8)
	docs.missing["doc-0"] = true
	p := newTestPipeline(&mockIndex{matches: matches}, docs, nil)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("per-document fetch failures must not abort the turn: %v", err)
	}
	if g.Context != "text-1" {
		t.Errorf("expected surviving text only, got %q", g.Context)
	}
	// The citation for the unfetchable document survives: citations come
	// from the score-filtered match set.
	if len(g.Sources) != 2 {
		t.Errorf("expected both citations, got %v", g.Sources)
	}
}

func TestRetrieve_RerankTriggersAboveThreshold(t *testing.T) {
	matches, docs := matchFixture(4, 0.9, 0.9, 0.9, 0.9)
	reranker := &mockReranker{order: []int{2, 0, 1}}
	p := newTestPipeline(&mockIndex{matches: matches}, docs, reranker)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if !reranker.called {
		t.Fatal("expected reranker to be invoked for 4 fetched documents")
	}
	if len(reranker.gotDoc) != 4 {
		t.Errorf("reranker should see all fetched texts, got %d", len(reranker.gotDoc))
	}
	want := "text-2\ntext-0\ntext-1"
	if g.Context != want {
		t.Errorf("reranked context = %q, want %q", g.Context, want)
	}
}

func TestRetrieve_NoRerankAtThreshold(t *testing.T) {
	matches, docs := matchFixture(3, 0.9, 0.9, 0.9)
	reranker := &mockReranker{order: []int{2, 1, 0}}
	p := newTestPipeline(&mockIndex{matches: matches}, docs, reranker)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if reranker.called {
		t.Error("reranker must not run for exactly 3 documents")
	}
	if g.Context != "text-0\ntext-1\ntext-2" {
		t.Errorf("expected fetch order, got %q", g.Context)
	}
}

func TestRetrieve_RerankerFailureKeepsFetchOrder(t *testing.T) {
	matches, docs := matchFixture(4, 0.9, 0.9, 0.9, 0.9)
	reranker := &mockReranker{err: errors.New("reranker down")}
	p := newTestPipeline(&mockIndex{matches: matches}, docs, reranker)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("rerank failure must not abort the turn: %v", err)
	}
	if g.Context != "text-0\ntext-1\ntext-2\ntext-3" {
		t.Errorf("expected untruncated fetch order on rerank failure, got %q", g.Context)
	}
}

func TestRetrieve_NilRerankerSkips(t *testing.T) {
	matches, docs := matchFixture(5, 0.9, 0.9, 0.9, 0.9, 0.9)
	p := newTestPipeline(&mockIndex{matches: matches}, docs, nil)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if strings.Count(g.Context, "\n") != 4 {
		t.Errorf("nil reranker must keep all 5 texts, got %q", g.Context)
	}
}

func TestRetrieve_EmbedFailureAbortsTurn(t *testing.T) {
	p := NewPipeline(&mockEmbedder{err: errors.New("embed down")},
		&mockIndex{}, &mockDocs{}, nil, config.DefaultRetrieval())

	if _, err := p.Retrieve(context.Background(), "q", nil); err == nil {
		t.Error("embed failure must abort the turn")
	}
}

func TestRetrieve_SearchFailureAbortsTurn(t *testing.T) {
	p := newTestPipeline(&mockIndex{err: errors.New("index down")}, &mockDocs{}, nil)

	if _, err := p.Retrieve(context.Background(), "q", nil); err == nil {
		t.Error("search failure must abort the turn")
	}
}

func TestRetrieve_StageNotifications(t *testing.T) {
	matches, docs := matchFixture(1, 0.9)
	p := newTestPipeline(&mockIndex{matches: matches}, docs, nil)

	var stages []Stage
	_, err := p.Retrieve(context.Background(), "q", func(s Stage) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(stages) != 2 || stages[0] != StageEmbedding || stages[1] != StageSearching {
		t.Errorf("unexpected stage order: %v", stages)
	}
}

func TestRetrieve_NoMatches(t *testing.T) {
	p := newTestPipeline(&mockIndex{}, &mockDocs{}, nil)

	g, err := p.Retrieve(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if g.Context != "" || len(g.Sources) != 0 {
		t.Errorf("expected empty grounding, got %+v", g)
	}
}
