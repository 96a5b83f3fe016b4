package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/sentinelops/gatekeep/internal/domain/kb"
)

// GetKnowledgeBaseByTag returns the KB bound to boundTag for applicationID,
// falling back to a global KB bound to the same tag if no application-scoped
// one exists.
func (s *Store) GetKnowledgeBaseByTag(ctx context.Context, applicationID, boundTag string) (kb.KnowledgeBase, error) {
	query, _, err := s.goqu.From("knowledge_bases").
		Select("id", "application_id", "bound_tag", "index_path", "total_pairs", "similarity_threshold", "global").
		Where(goqu.C("bound_tag").Eq(boundTag), goqu.Or(goqu.C("application_id").Eq(applicationID), goqu.C("global").Eq(1))).
		Order(goqu.C("global").Asc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return kb.KnowledgeBase{}, fmt.Errorf("store: build kb lookup: %w", err)
	}
	var k kb.KnowledgeBase
	var applicationIDCol sql.NullString
	var global int
	err = s.db.QueryRowContext(ctx, query).Scan(&k.ID, &applicationIDCol, &k.BoundTag, &k.IndexPath, &k.TotalPairs, &k.SimilarityThreshold, &global)
	if errors.Is(err, sql.ErrNoRows) {
		return kb.KnowledgeBase{}, ErrNotFound
	}
	if err != nil {
		return kb.KnowledgeBase{}, fmt.Errorf("store: kb lookup: %w", err)
	}
	k.ApplicationID = applicationIDCol.String
	k.Global = global != 0
	return k, nil
}

// CreateKnowledgeBase inserts a new KB.
func (s *Store) CreateKnowledgeBase(ctx context.Context, k kb.KnowledgeBase) (kb.KnowledgeBase, error) {
	k.ID = ulid.Make().String()
	insert, _, err := s.goqu.Insert("knowledge_bases").Rows(goqu.Record{
		"id": k.ID, "application_id": nullableStr(k.ApplicationID), "bound_tag": k.BoundTag,
		"index_path": k.IndexPath, "total_pairs": k.TotalPairs,
		"similarity_threshold": k.SimilarityThreshold, "global": boolInt(k.Global),
	}).ToSQL()
	if err != nil {
		return kb.KnowledgeBase{}, fmt.Errorf("store: build kb insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return kb.KnowledgeBase{}, fmt.Errorf("store: create kb: %w", err)
	}
	return k, nil
}

// AddQAPair inserts a Q&A pair and bumps the KB's total_pairs counter.
func (s *Store) AddQAPair(ctx context.Context, kbID string, pair kb.QAPair) (kb.QAPair, error) {
	pair.QuestionID = ulid.Make().String()
	insert, _, err := s.goqu.Insert("qa_pairs").Rows(goqu.Record{
		"id": pair.QuestionID, "kb_id": kbID, "question": pair.Question, "answer": pair.Answer,
	}).ToSQL()
	if err != nil {
		return kb.QAPair{}, fmt.Errorf("store: build qa pair insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insert); err != nil {
		return kb.QAPair{}, fmt.Errorf("store: create qa pair: %w", err)
	}
	bump, _, err := s.goqu.Update("knowledge_bases").
		Set(goqu.Record{"total_pairs": goqu.L("total_pairs + 1")}).
		Where(goqu.C("id").Eq(kbID)).
		ToSQL()
	if err != nil {
		return kb.QAPair{}, fmt.Errorf("store: build kb counter bump: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, bump); err != nil {
		return kb.QAPair{}, fmt.Errorf("store: bump kb counter: %w", err)
	}
	return pair, nil
}

// ListQAPairs returns every Q&A pair belonging to kbID, for the vector
// index adapter to (re)build its in-memory or Milvus collection from.
func (s *Store) ListQAPairs(ctx context.Context, kbID string) ([]kb.QAPair, error) {
	query, _, err := s.goqu.From("qa_pairs").
		Select("id", "question", "answer").
		Where(goqu.C("kb_id").Eq(kbID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("store: build qa pair list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list qa pairs: %w", err)
	}
	defer rows.Close()

	var out []kb.QAPair
	for rows.Next() {
		var p kb.QAPair
		if err := rows.Scan(&p.QuestionID, &p.Question, &p.Answer); err != nil {
			return nil, fmt.Errorf("store: scan qa pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
