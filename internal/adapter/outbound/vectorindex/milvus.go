package vectorindex

import (
	"context"
	"fmt"
	"sync"

	mvclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/sentinelops/gatekeep/internal/domain/kb"
)

const (
	fieldID       = "id"
	fieldQuestion = "question"
	fieldAnswer   = "answer"
	fieldVector   = "vector"
)

// Milvus implements kb.VectorIndex against a Milvus collection-per-KB
// layout, for deployments configured with config.EmbeddingConfig.MilvusAddr.
type Milvus struct {
	cli      mvclient.Client
	embedder Embedder
	source   QAPairSource
	dim      int

	mu       sync.Mutex
	prepared map[string]bool // kbID -> collection created/loaded/populated
}

// NewMilvus connects to addr and returns a Milvus-backed vector index.
// dim must match the embedder's output dimension.
func NewMilvus(ctx context.Context, addr string, dim int, embedder Embedder, source QAPairSource) (*Milvus, error) {
	cli, err := mvclient.NewGrpcClient(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connect milvus: %w", err)
	}
	return &Milvus{cli: cli, embedder: embedder, source: source, dim: dim, prepared: make(map[string]bool)}, nil
}

func collectionName(kbID string) string {
	return "kb_" + kbID
}

// ensureCollection creates, indexes, loads and populates the collection
// backing kbID the first time it is searched in this process.
func (m *Milvus) ensureCollection(ctx context.Context, kbID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prepared[kbID] {
		return nil
	}

	name := collectionName(kbID)
	has, err := m.cli.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorindex: has collection: %w", err)
	}
	if !has {
		schema := &entity.Schema{
			CollectionName: name,
			Fields: []*entity.Field{
				{Name: fieldID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, AutoID: false, TypeParams: map[string]string{"max_length": "64"}},
				{Name: fieldQuestion, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "4096"}},
				{Name: fieldAnswer, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "4096"}},
				{Name: fieldVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.dim)}},
			},
		}
		if err := m.cli.CreateCollection(ctx, schema, 1); err != nil {
			return fmt.Errorf("vectorindex: create collection: %w", err)
		}
		idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
		if err != nil {
			return fmt.Errorf("vectorindex: build index params: %w", err)
		}
		if err := m.cli.CreateIndex(ctx, name, fieldVector, idx, false); err != nil {
			return fmt.Errorf("vectorindex: create index: %w", err)
		}
	}

	rows, err := m.source.ListQAPairs(ctx, kbID)
	if err != nil {
		return fmt.Errorf("vectorindex: list qa pairs: %w", err)
	}
	if len(rows) > 0 {
		ids := make([]string, len(rows))
		questions := make([]string, len(rows))
		answers := make([]string, len(rows))
		vectors := make([][]float32, len(rows))
		for i, p := range rows {
			vec, err := m.embedder.Embed(ctx, p.Question)
			if err != nil {
				return fmt.Errorf("vectorindex: embed qa pair %s: %w", p.QuestionID, err)
			}
			ids[i] = p.QuestionID
			questions[i] = p.Question
			answers[i] = p.Answer
			vectors[i] = vec
		}
		_, err = m.cli.Insert(ctx, name, "",
			entity.NewColumnVarChar(fieldID, ids),
			entity.NewColumnVarChar(fieldQuestion, questions),
			entity.NewColumnVarChar(fieldAnswer, answers),
			entity.NewColumnFloatVector(fieldVector, m.dim, vectors),
		)
		if err != nil {
			return fmt.Errorf("vectorindex: insert qa pairs: %w", err)
		}
		if err := m.cli.Flush(ctx, name, false); err != nil {
			return fmt.Errorf("vectorindex: flush collection: %w", err)
		}
	}

	if err := m.cli.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("vectorindex: load collection: %w", err)
	}
	m.prepared[kbID] = true
	return nil
}

// Search implements kb.VectorIndex. Milvus L2 distance is converted to a
// cosine-similarity-comparable score via 1/(1+distance); callers that
// need an exact cosine value should use Memory instead.
func (m *Milvus) Search(ctx context.Context, kbID string, query string, threshold float64) (kb.Match, bool, error) {
	if err := m.ensureCollection(ctx, kbID); err != nil {
		return kb.Match{}, false, err
	}
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return kb.Match{}, false, err
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return kb.Match{}, false, fmt.Errorf("vectorindex: search params: %w", err)
	}
	results, err := m.cli.Search(ctx, collectionName(kbID), nil, "", []string{fieldQuestion, fieldAnswer},
		[]entity.Vector{entity.FloatVector(queryVec)}, fieldVector, entity.L2, 1, sp)
	if err != nil {
		return kb.Match{}, false, fmt.Errorf("vectorindex: search: %w", err)
	}
	if len(results) == 0 || results[0].ResultCount == 0 {
		return kb.Match{}, false, nil
	}

	r := results[0]
	similarity := 1 / (1 + float64(r.Scores[0]))
	if similarity < threshold {
		return kb.Match{}, false, nil
	}
	questionCol, _ := r.Fields.GetColumn(fieldQuestion).(*entity.ColumnVarChar)
	answerCol, _ := r.Fields.GetColumn(fieldAnswer).(*entity.ColumnVarChar)
	idCol, _ := r.IDs.(*entity.ColumnVarChar)
	var match kb.Match
	match.Similarity = similarity
	if idCol != nil && len(idCol.Data()) > 0 {
		match.QuestionID = idCol.Data()[0]
	}
	if questionCol != nil && len(questionCol.Data()) > 0 {
		match.Question = questionCol.Data()[0]
	}
	if answerCol != nil && len(answerCol.Data()) > 0 {
		match.Answer = answerCol.Data()[0]
	}
	return match, true, nil
}

// Close releases the underlying gRPC connection.
func (m *Milvus) Close() error {
	return m.cli.Close()
}
