package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"candidate-screener/internal/config"
	"candidate-screener/internal/logger"
	"candidate-screener/internal/services"
)

// Ingests the reference documents (job description, case study brief and
// both scoring rubrics) into the vector index. Chunk ids derive from the
// document id, so re-running the script replaces prior chunks in place;
// --reset drops the collection first for a clean slate.
func main() {
	reset := flag.Bool("reset", false, "drop and recreate the collection before ingesting")
	docsDir := flag.String("docs", "./reference_docs", "directory containing the reference PDFs")
	flag.Parse()

	cfg := config.Load()

	zlog, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	embedder, err := services.NewGeminiTransport(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel)
	if err != nil {
		zlog.Fatal("failed to initialize embedding provider", zap.Error(err))
	}

	vectorIndex, err := services.NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection)
	if err != nil {
		zlog.Fatal("failed to initialize qdrant", zap.Error(err))
	}

	if *reset {
		zlog.Info("resetting collection", zap.String("collection", cfg.Qdrant.Collection))
		if err := vectorIndex.Reset(ctx); err != nil {
			zlog.Fatal("failed to reset collection", zap.Error(err))
		}
	} else if err := vectorIndex.InitCollection(ctx); err != nil {
		zlog.Fatal("failed to initialize collection", zap.Error(err))
	}

	retrieval := services.NewRetrievalEngine(
		services.NewTextChunker(),
		embedder,
		vectorIndex,
		cfg.Retrieval.TopK,
		zlog,
	)

	pdfParser := services.NewPDFParser()

	documents := []struct {
		Path    string
		DocType string
		DocID   string
	}{
		{Path: *docsDir + "/job_description.pdf", DocType: services.DocTypeJobDescription, DocID: "job_description"},
		{Path: *docsDir + "/case_study_brief.pdf", DocType: services.DocTypeCaseStudy, DocID: "case_study_brief"},
		{Path: *docsDir + "/cv_scoring_rubric.pdf", DocType: services.DocTypeCVRubric, DocID: "cv_scoring_rubric"},
		{Path: *docsDir + "/project_scoring_rubric.pdf", DocType: services.DocTypeProjectRubric, DocID: "project_scoring_rubric"},
	}

	failed := 0
	for _, doc := range documents {
		if _, err := os.Stat(doc.Path); err != nil {
			zlog.Warn("reference document missing, skipping",
				zap.String("path", doc.Path),
				zap.String("document_type", doc.DocType))
			failed++
			continue
		}

		text, err := pdfParser.ExtractText(doc.Path)
		if err != nil {
			zlog.Error("failed to extract text",
				zap.String("path", doc.Path), zap.Error(err))
			failed++
			continue
		}

		err = retrieval.Ingest(ctx, text, doc.DocType, doc.DocID, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
		if err != nil {
			zlog.Error("failed to ingest document",
				zap.String("document_id", doc.DocID), zap.Error(err))
			failed++
			continue
		}
	}

	if failed > 0 {
		zlog.Warn("ingestion finished with failures", zap.Int("failed", failed))
		os.Exit(1)
	}

	zlog.Info("all reference documents ingested")
}
