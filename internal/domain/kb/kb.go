// Package kb holds the knowledge-base entity and the vector-similarity
// lookup port consulted by the disposition resolver before falling back
// to a canned response template.
package kb

import "context"

// KnowledgeBase is a per-application Q&A corpus bound to a scanner tag
// (or a blacklist/whitelist name). Global KBs are visible to every
// application of every tenant.
type KnowledgeBase struct {
	ID                  string
	ApplicationID       string
	BoundTag            string // scanner tag or blacklist/whitelist name
	IndexPath           string
	TotalPairs          int
	SimilarityThreshold float64
	Global              bool
}

// QAPair is one indexed question/answer row.
type QAPair struct {
	QuestionID string
	Question   string
	Answer     string
}

// Match is a similarity search hit.
type Match struct {
	QAPair
	Similarity float64
}

// VectorIndex is the port to the KB similarity search backend
// (internal/adapter/outbound/vectorindex implements it against Milvus or
// an in-memory cosine-similarity fallback).
type VectorIndex interface {
	// Search returns the best match for query within kb, if its cosine
	// similarity is >= kb's configured threshold. A similarity exactly at
	// the threshold counts as a hit (inclusive boundary).
	Search(ctx context.Context, kbID string, query string, threshold float64) (Match, bool, error)
}

// Lookup resolves the best answer for query against the KB bound to
// boundTag, if one exists. KB lookup failure falls back silently (the
// caller treats a returned error as "no KB answer", not a request
// failure) per §4.2's failure semantics.
func Lookup(ctx context.Context, idx VectorIndex, k KnowledgeBase, query string) (Match, bool) {
	m, ok, err := idx.Search(ctx, k.ID, query, k.SimilarityThreshold)
	if err != nil || !ok {
		return Match{}, false
	}
	return m, true
}
