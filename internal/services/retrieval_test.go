package services

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmbedder hashes each text into a one-dimensional vector so distinct
// inputs map to distinct vectors deterministically.
type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var sum float32
		for _, r := range text {
			sum += float32(r)
		}
		vectors[i] = []float32{sum}
	}
	return vectors, nil
}

// memoryIndex is an in-memory VectorIndex keyed by chunk id, matching the
// overwrite-by-id semantics of the real store.
type memoryIndex struct {
	records map[string]ChunkRecord
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{records: make(map[string]ChunkRecord)}
}

func (m *memoryIndex) InitCollection(ctx context.Context) error { return nil }

func (m *memoryIndex) UpsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	for _, chunk := range chunks {
		m.records[chunk.ChunkID()] = chunk
	}
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, vector []float32, documentTypes []string, limit int) ([]SearchResult, error) {
	allowed := make(map[string]bool, len(documentTypes))
	for _, t := range documentTypes {
		allowed[t] = true
	}

	var results []SearchResult
	for _, record := range m.records {
		if len(allowed) > 0 && !allowed[record.DocumentType] {
			continue
		}
		diff := record.Vector[0] - vector[0]
		if diff < 0 {
			diff = -diff
		}
		results = append(results, SearchResult{
			ID:           record.ChunkID(),
			DocumentID:   record.DocumentID,
			DocumentType: record.DocumentType,
			ChunkIndex:   record.ChunkIndex,
			Text:         record.Text,
			Distance:     diff,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memoryIndex) Reset(ctx context.Context) error {
	m.records = make(map[string]ChunkRecord)
	return nil
}

func newTestEngine(index VectorIndex) RetrievalEngine {
	return NewRetrievalEngine(NewTextChunker(), &fakeEmbedder{}, index, 5, zap.NewNop())
}

func TestIngestStoresDeterministicChunkIDs(t *testing.T) {
	index := newMemoryIndex()
	engine := newTestEngine(index)

	text := "alpha beta gamma delta epsilon zeta eta theta"
	require.NoError(t, engine.Ingest(context.Background(), text, DocTypeCVRubric, "cv_scoring_rubric", 20, 5))

	require.NotEmpty(t, index.records)
	for id, record := range index.records {
		assert.Equal(t, fmt.Sprintf("cv_scoring_rubric_chunk_%d", record.ChunkIndex), id)
		assert.Equal(t, DocTypeCVRubric, record.DocumentType)
	}
}

func TestReingestOverwritesPriorChunks(t *testing.T) {
	index := newMemoryIndex()
	engine := newTestEngine(index)
	ctx := context.Background()

	require.NoError(t, engine.Ingest(ctx, "old rubric content", DocTypeCVRubric, "rubric", 1000, 200))
	require.NoError(t, engine.Ingest(ctx, "new rubric content", DocTypeCVRubric, "rubric", 1000, 200))

	results, err := engine.Retrieve(ctx, "rubric", []string{DocTypeCVRubric}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new rubric content", results[0].Text)
	assert.Equal(t, "rubric_chunk_0", results[0].ID)
}

func TestRetrieveFiltersByDocumentType(t *testing.T) {
	index := newMemoryIndex()
	engine := newTestEngine(index)
	ctx := context.Background()

	require.NoError(t, engine.Ingest(ctx, "backend job requirements", DocTypeJobDescription, "jd", 1000, 200))
	require.NoError(t, engine.Ingest(ctx, "case study instructions", DocTypeCaseStudy, "cs", 1000, 200))

	results, err := engine.Retrieve(ctx, "requirements", []string{DocTypeJobDescription}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DocTypeJobDescription, results[0].DocumentType)
}

func TestRetrieveEmptyIndexReturnsEmpty(t *testing.T) {
	engine := newTestEngine(newMemoryIndex())

	results, err := engine.Retrieve(context.Background(), "anything", []string{DocTypeCVRubric}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveOrdersByAscendingDistance(t *testing.T) {
	index := newMemoryIndex()
	engine := newTestEngine(index)
	ctx := context.Background()

	require.NoError(t, engine.Ingest(ctx, "aaaa", DocTypeCVRubric, "doc1", 1000, 200))
	require.NoError(t, engine.Ingest(ctx, "zzzzzzzzzz", DocTypeCVRubric, "doc2", 1000, 200))

	results, err := engine.Retrieve(ctx, "aaaa", []string{DocTypeCVRubric}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, "doc1", results[0].DocumentID)
}

func TestForCVEvaluationGroupsSections(t *testing.T) {
	index := newMemoryIndex()
	engine := newTestEngine(index)
	ctx := context.Background()

	require.NoError(t, engine.Ingest(ctx, "five years of Go experience required", DocTypeJobDescription, "jd", 1000, 200))
	require.NoError(t, engine.Ingest(ctx, "score technical skills one to five", DocTypeCVRubric, "rubric", 1000, 200))

	contextText, err := engine.ForCVEvaluation(ctx, "Backend Engineer")
	require.NoError(t, err)

	assert.Contains(t, contextText, "## Job Requirements and Qualifications:")
	assert.Contains(t, contextText, "five years of Go experience required")
	assert.Contains(t, contextText, "## CV Evaluation Rubric:")
	assert.Contains(t, contextText, "score technical skills one to five")
}

func TestForProjectEvaluationGroupsSections(t *testing.T) {
	index := newMemoryIndex()
	engine := newTestEngine(index)
	ctx := context.Background()

	require.NoError(t, engine.Ingest(ctx, "build an evaluation pipeline", DocTypeCaseStudy, "cs", 1000, 200))
	require.NoError(t, engine.Ingest(ctx, "grade resilience and documentation", DocTypeProjectRubric, "pr", 1000, 200))

	contextText, err := engine.ForProjectEvaluation(ctx)
	require.NoError(t, err)

	assert.Contains(t, contextText, "## Case Study Requirements:")
	assert.Contains(t, contextText, "build an evaluation pipeline")
	assert.Contains(t, contextText, "## Project Evaluation Rubric:")
	assert.Contains(t, contextText, "grade resilience and documentation")
}
