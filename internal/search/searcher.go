package search

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/aicooking/recipegen/internal/store"
)

// Candidate thresholds and scoring weights. The combined score blends vector
// similarity with the lexical rank; a rank above lexicalThreshold means the
// query actually matched text, not just vectors.
const (
	DefaultLimit     = 5
	lexicalThreshold = 0.01
	lexicalWeight    = 5.0

	MethodSemantic = "semantic"
	MethodHybrid   = "hybrid"
)

// CandidateStore is the retrieval surface the searcher needs.
type CandidateStore interface {
	HybridSearch(ctx context.Context, vector []float32, query string, limit int) ([]store.ChunkCandidate, error)
	NearestByVector(ctx context.Context, vector []float32, limit int) ([]store.ChunkCandidate, error)
}

// Embedder produces one embedding vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one retrieval hit with its reported scores. The scores here are
// presentation values; the store already ordered candidates by its own fused
// ranking and that order is preserved.
type Result struct {
	ChunkID          int64   `json:"chunk_id"`
	DocumentID       string  `json:"document_id"`
	DocumentTitle    string  `json:"document_title"`
	Content          string  `json:"content"`
	ChunkIndex       int     `json:"chunk_index"`
	VectorSimilarity float64 `json:"vector_similarity"`
	TextMatchScore   float64 `json:"text_match_score"`
	CombinedScore    float64 `json:"combined_score"`
	SearchMethod     string  `json:"search_method"`
}

// Searcher answers free-text queries against the chunk corpus. Queries are
// embedded once; an optional cache short-circuits repeat embeddings.
type Searcher struct {
	store    CandidateStore
	embedder Embedder
	cache    EmbeddingCache
	logger   *log.Logger
}

// NewSearcher wires a searcher. cache may be nil.
func NewSearcher(st CandidateStore, embedder Embedder, cache EmbeddingCache, logger *log.Logger) *Searcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &Searcher{store: st, embedder: embedder, cache: cache, logger: logger}
}

// Search embeds the query and returns the top candidates in the store's
// fused order. When the hybrid fetch comes back empty the search degrades to
// a pure vector scan with a zero text rank rather than returning
// empty-handed; stores that keep non-matching candidates with rank 0 never
// take this branch, but stores that filter on the lexical match do.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	candidates, err := s.store.HybridSearch(ctx, vector, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(candidates) == 0 {
		s.logger.Printf("no lexical candidates for %q, falling back to vector-only", query)
		candidates, err = s.store.NearestByVector(ctx, vector, limit)
		if err != nil {
			return nil, fmt.Errorf("search: vector fallback: %w", err)
		}
		for i := range candidates {
			candidates[i].TextRank = 0
		}
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		r := score(c)
		searchesByMethod.WithLabelValues(r.SearchMethod).Inc()
		results = append(results, r)
	}
	return results, nil
}

func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		if vector, ok := s.cache.Get(ctx, query); ok {
			return vector, nil
		}
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, query, vector)
	}
	return vector, nil
}

// score converts the store's raw distance and rank into the reported scores.
func score(c store.ChunkCandidate) Result {
	similarity := round4(1 - c.Distance)
	combined := round4((similarity + c.TextRank*lexicalWeight) / 6)
	method := MethodSemantic
	if c.TextRank > lexicalThreshold {
		method = MethodHybrid
	}
	return Result{
		ChunkID:          c.ChunkID,
		DocumentID:       c.DocumentID,
		DocumentTitle:    c.DocumentTitle,
		Content:          c.Content,
		ChunkIndex:       c.ChunkIndex,
		VectorSimilarity: similarity,
		TextMatchScore:   c.TextRank,
		CombinedScore:    combined,
		SearchMethod:     method,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
