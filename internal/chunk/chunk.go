// Package chunk splits long input texts into bounded, ordered segments so
// that each segment fits a single evaluation call.
package chunk

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
	"github.com/johnmichaelkuczynski/texteval/pkg/textx"
)

// DefaultChunkSize is the word threshold above which a text is chunked.
const DefaultChunkSize = 1000

// previewLen bounds the chunk preview shown to clients.
const previewLen = 200

// Text splits text on whitespace into ordered chunks of at most chunkSize
// words each; the last chunk may be shorter. Empty input yields nil.
// Chunks start unselected; selection is client-controlled.
func Text(text string, chunkSize int) []domain.Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []domain.Chunk
	for i := 0; i < len(words); i += chunkSize {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		body := strings.Join(words[i:end], " ")
		chunks = append(chunks, domain.Chunk{
			ID:        uuid.NewString(),
			Text:      body,
			WordCount: end - i,
			Title:     fmt.Sprintf("Chunk %d", len(chunks)+1),
			Preview:   textx.Preview(body, previewLen),
			Selected:  false,
		})
	}
	return chunks
}

// Needed reports whether text exceeds the chunking threshold.
func Needed(text string, chunkSize int) bool {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return textx.WordCount(text) > chunkSize
}
