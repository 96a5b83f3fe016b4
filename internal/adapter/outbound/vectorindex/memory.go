package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sentinelops/gatekeep/internal/domain/kb"
)

// QAPairSource loads a KB's Q&A corpus for (re)indexing, implemented by
// the store package against the qa_pairs table.
type QAPairSource interface {
	ListQAPairs(ctx context.Context, kbID string) ([]kb.QAPair, error)
}

type indexedPair struct {
	kb.QAPair
	vector []float32
}

// Memory implements kb.VectorIndex as an in-process cosine-similarity
// search over embeddings computed at index time, for deployments without
// a Milvus instance (config.EmbeddingConfig.MilvusAddr unset).
type Memory struct {
	embedder Embedder
	source   QAPairSource

	mu    sync.RWMutex
	pairs map[string][]indexedPair // kbID -> indexed corpus
}

// NewMemory builds an in-memory vector index backed by embedder for
// query/corpus vectors and source for loading a KB's Q&A pairs.
func NewMemory(embedder Embedder, source QAPairSource) *Memory {
	return &Memory{embedder: embedder, source: source, pairs: make(map[string][]indexedPair)}
}

// Reindex (re)embeds every Q&A pair in kbID and replaces its cached
// corpus. Callers invoke this after AddQAPair; it is not automatic since
// the index has no way to observe store writes on its own.
func (m *Memory) Reindex(ctx context.Context, kbID string) error {
	rows, err := m.source.ListQAPairs(ctx, kbID)
	if err != nil {
		return fmt.Errorf("vectorindex: reindex %s: %w", kbID, err)
	}
	indexed := make([]indexedPair, 0, len(rows))
	for _, p := range rows {
		vec, err := m.embedder.Embed(ctx, p.Question)
		if err != nil {
			return fmt.Errorf("vectorindex: embed qa pair %s: %w", p.QuestionID, err)
		}
		indexed = append(indexed, indexedPair{QAPair: p, vector: vec})
	}
	m.mu.Lock()
	m.pairs[kbID] = indexed
	m.mu.Unlock()
	return nil
}

// Search implements kb.VectorIndex.
func (m *Memory) Search(ctx context.Context, kbID string, query string, threshold float64) (kb.Match, bool, error) {
	m.mu.RLock()
	corpus, ok := m.pairs[kbID]
	m.mu.RUnlock()
	if !ok {
		if err := m.Reindex(ctx, kbID); err != nil {
			return kb.Match{}, false, err
		}
		m.mu.RLock()
		corpus = m.pairs[kbID]
		m.mu.RUnlock()
	}
	if len(corpus) == 0 {
		return kb.Match{}, false, nil
	}

	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return kb.Match{}, false, err
	}

	var best indexedPair
	bestSim := -1.0
	for _, p := range corpus {
		sim := cosineSimilarity(queryVec, p.vector)
		if sim > bestSim {
			bestSim = sim
			best = p
		}
	}
	if bestSim < threshold {
		return kb.Match{}, false, nil
	}
	return kb.Match{QAPair: best.QAPair, Similarity: bestSim}, true, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
