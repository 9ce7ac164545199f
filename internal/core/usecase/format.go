package usecase

import (
	"fmt"
	"strings"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// FormatContext concatenates surviving chunks with source attribution into the
// context string handed to the answer-generation layer. Pure formatting, no
// side effects.
func FormatContext(results []domain.ScoredChunk) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(fmt.Sprintf("[source: %s", r.Chunk.SourceDocumentID))
		if r.Chunk.PageNumber > 0 {
			b.WriteString(fmt.Sprintf(", page %d", r.Chunk.PageNumber))
		}
		b.WriteString("]\n")
		b.WriteString(strings.TrimSpace(r.Chunk.Text))
	}
	return b.String()
}
