package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"candidate-screener/internal/errs"
)

// ChunkRecord is one stored unit of the reference corpus: a text window, its
// owning document and its embedding.
type ChunkRecord struct {
	DocumentID   string
	DocumentType string
	ChunkIndex   int
	Text         string
	Vector       []float32
}

// ChunkID is the deterministic identifier for a chunk. Re-ingesting the same
// document overwrites prior chunks at identical ids.
func (c ChunkRecord) ChunkID() string {
	return fmt.Sprintf("%s_chunk_%d", c.DocumentID, c.ChunkIndex)
}

// SearchResult is one retrieved chunk. Distance is 1-cosine similarity, so
// lower is a better match.
type SearchResult struct {
	ID           string
	DocumentID   string
	DocumentType string
	ChunkIndex   int
	Text         string
	Distance     float32
}

// VectorIndex stores chunk records and answers filtered nearest-neighbor
// queries. Concurrent reads and appends are safe; writes for distinct
// document ids never interfere.
type VectorIndex interface {
	InitCollection(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []ChunkRecord) error
	Query(ctx context.Context, vector []float32, documentTypes []string, limit int) ([]SearchResult, error)
	Reset(ctx context.Context) error
}

type qdrantIndex struct {
	client         *qdrant.Client
	collectionName string
	vectorSize     uint64
}

func NewQdrantIndex(urlStr, apiKey, collectionName string) (VectorIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "invalid qdrant url", err)
	}

	host := parsed.Hostname()
	useTLS := parsed.Scheme == "https"

	// gRPC port, not the REST one.
	port := 6334
	if p := parsed.Port(); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "failed to create qdrant client", err)
	}

	return &qdrantIndex{
		client:         client,
		collectionName: collectionName,
		vectorSize:     768, // text-embedding-004 output size
	}, nil
}

// InitCollection implements VectorIndex.
func (q *qdrantIndex) InitCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertChunks implements VectorIndex. Point ids derive from the chunk id,
// so identical ids overwrite in place.
func (q *qdrantIndex) UpsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		chunkID := chunk.ChunkID()
		pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID))

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID.String()),
			Vectors: qdrant.NewVectors(chunk.Vector...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"chunk_id":      chunkID,
				"document_id":   chunk.DocumentID,
				"document_type": chunk.DocumentType,
				"chunk_index":   chunk.ChunkIndex,
				"text":          chunk.Text,
			}),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return errs.Wrap(errs.KindTransient, "failed to upsert points", err)
	}

	return nil
}

// Query implements VectorIndex. Results come back ordered best match first.
func (q *qdrantIndex) Query(ctx context.Context, vector []float32, documentTypes []string, limit int) ([]SearchResult, error) {
	var filter *qdrant.Filter
	if len(documentTypes) > 0 {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("document_type", documentTypes...),
			},
		}
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "failed to query collection", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		payload := point.Payload

		result := SearchResult{
			// Cosine similarity, flipped so best match has lowest distance.
			Distance: 1 - point.Score,
		}

		if v := payloadString(payload, "chunk_id"); v != "" {
			result.ID = v
		}
		if v := payloadString(payload, "document_id"); v != "" {
			result.DocumentID = v
		}
		if v := payloadString(payload, "document_type"); v != "" {
			result.DocumentType = v
		}
		if v := payloadString(payload, "text"); v != "" {
			result.Text = v
		}
		if idx, ok := payload["chunk_index"]; ok {
			if val, ok := idx.GetKind().(*qdrant.Value_IntegerValue); ok {
				result.ChunkIndex = int(val.IntegerValue)
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// Reset implements VectorIndex. Drops and recreates the collection.
func (q *qdrantIndex) Reset(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.collectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return q.InitCollection(ctx)
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if val, ok := v.GetKind().(*qdrant.Value_StringValue); ok {
			return val.StringValue
		}
	}
	return ""
}
