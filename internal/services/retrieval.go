package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Reference document types stored in the vector index.
const (
	DocTypeJobDescription = "job_description"
	DocTypeCaseStudy      = "case_study"
	DocTypeCVRubric       = "cv_rubric"
	DocTypeProjectRubric  = "project_rubric"
)

// RetrievalEngine composes the chunker, the embedding provider and the
// vector index into document ingestion and topic-scoped context retrieval.
type RetrievalEngine interface {
	Ingest(ctx context.Context, text, documentType, documentID string, chunkSize, chunkOverlap int) error
	Retrieve(ctx context.Context, query string, documentTypes []string, topK int) ([]SearchResult, error)
	ForCVEvaluation(ctx context.Context, jobTitle string) (string, error)
	ForProjectEvaluation(ctx context.Context) (string, error)
}

type retrievalEngine struct {
	chunker  TextChunker
	embedder EmbeddingProvider
	index    VectorIndex
	log      *zap.Logger
	topK     int
}

func NewRetrievalEngine(
	chunker TextChunker,
	embedder EmbeddingProvider,
	index VectorIndex,
	topK int,
	log *zap.Logger,
) RetrievalEngine {
	if topK <= 0 {
		topK = 5
	}
	return &retrievalEngine{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		log:      log,
		topK:     topK,
	}
}

// Ingest implements RetrievalEngine. Chunk ids derive from documentID and
// chunk index, so re-ingesting a document overwrites its prior chunks in
// place: idempotent by identifier, not by content.
func (r *retrievalEngine) Ingest(ctx context.Context, text, documentType, documentID string, chunkSize, chunkOverlap int) error {
	chunks := r.chunker.ChunkText(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s produced no chunks", documentID)
	}

	vectors, err := r.embedder.Encode(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed chunks for %s: %w", documentID, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch for %s: %d chunks, %d vectors", documentID, len(chunks), len(vectors))
	}

	records := make([]ChunkRecord, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, ChunkRecord{
			DocumentID:   documentID,
			DocumentType: documentType,
			ChunkIndex:   i,
			Text:         chunk,
			Vector:       vectors[i],
		})
	}

	if err := r.index.UpsertChunks(ctx, records); err != nil {
		return fmt.Errorf("failed to store chunks for %s: %w", documentID, err)
	}

	r.log.Info("ingested document",
		zap.String("document_id", documentID),
		zap.String("document_type", documentType),
		zap.Int("chunks", len(records)),
	)
	return nil
}

// Retrieve implements RetrievalEngine. Results come back ordered by
// ascending distance. An index with no matching chunks yields an empty
// slice, not an error, so prompting stays resilient to an empty corpus.
func (r *retrievalEngine) Retrieve(ctx context.Context, query string, documentTypes []string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vectors, err := r.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.index.Query(ctx, vectors[0], documentTypes, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	return results, nil
}

// ForCVEvaluation retrieves grounding context scoped to the job description
// and CV rubric, grouped into labeled sections.
func (r *retrievalEngine) ForCVEvaluation(ctx context.Context, jobTitle string) (string, error) {
	query := fmt.Sprintf("%s requirements and qualifications", jobTitle)
	results, err := r.Retrieve(ctx, query, []string{DocTypeJobDescription, DocTypeCVRubric}, r.topK)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Reference Context for CV Evaluation\n\n")
	sb.WriteString("## Job Requirements and Qualifications:\n")
	writeSection(&sb, results, DocTypeJobDescription)
	sb.WriteString("\n## CV Evaluation Rubric:\n")
	writeSection(&sb, results, DocTypeCVRubric)

	return sb.String(), nil
}

// ForProjectEvaluation retrieves grounding context scoped to the case study
// brief and project rubric.
func (r *retrievalEngine) ForProjectEvaluation(ctx context.Context) (string, error) {
	results, err := r.Retrieve(ctx, "project requirements evaluation criteria", []string{DocTypeCaseStudy, DocTypeProjectRubric}, r.topK)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# Reference Context for Project Evaluation\n\n")
	sb.WriteString("## Case Study Requirements:\n")
	writeSection(&sb, results, DocTypeCaseStudy)
	sb.WriteString("\n## Project Evaluation Rubric:\n")
	writeSection(&sb, results, DocTypeProjectRubric)

	return sb.String(), nil
}

// writeSection appends the chunks of one document type, preserving retrieval
// order within the section.
func writeSection(sb *strings.Builder, results []SearchResult, documentType string) {
	for _, result := range results {
		if result.DocumentType != documentType {
			continue
		}
		sb.WriteString(result.Text)
		sb.WriteString("\n\n")
	}
}
