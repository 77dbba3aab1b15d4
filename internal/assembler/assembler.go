// Package assembler renders retrieval results into the context block handed
// to the language model.
package assembler

import (
	"fmt"
	"math"
	"strings"

	"rag-memory/internal/domain"
)

// NoContext is emitted instead of an empty block so callers can branch on it.
const NoContext = "No relevant information found in memory."

// Assemble renders the first topK results in rank order. A topK <= 0 keeps
// every result.
func Assemble(results []domain.RetrievalResult, topK int) string {
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	if len(results) == 0 {
		return NoContext
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("SOURCE: %s [%s] (Confidence: %d%%)\nCONTENT: %s",
			r.Filename, r.Tag, int(math.Round(r.Score*100)), r.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// HasContext reports whether block carries any retrieved memory.
func HasContext(block string) bool { return block != NoContext }
