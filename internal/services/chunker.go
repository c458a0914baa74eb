package services

type TextChunker interface {
	ChunkText(text string, chunkSize int, overlap int) []string
}

type textChunker struct{}

func NewTextChunker() TextChunker {
	return &textChunker{}
}

// ChunkText splits text into overlapping fixed-size windows. The start index
// advances by chunkSize-overlap, so consecutive chunks share the trailing
// `overlap` runes of the previous one; the final chunk may be shorter than
// chunkSize. Slicing is rune-based so multi-byte characters never split.
// Deterministic and restartable: no sentence or paragraph awareness.
func (tc *textChunker) ChunkText(text string, chunkSize int, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
