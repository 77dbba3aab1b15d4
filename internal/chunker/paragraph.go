// Package chunker splits extracted text into bounded segments for embedding.
package chunker

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the character budget used when none is given.
const DefaultMaxLength = 512

// Splitter turns a document's text into ordered chunks.
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// ParagraphChunker packs paragraphs into chunks of at most maxLength
// characters. A paragraph is never split, so one longer than maxLength
// becomes a chunk of its own.
type ParagraphChunker struct {
	maxLength int
}

func NewParagraphChunker(maxLength int) *ParagraphChunker {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &ParagraphChunker{maxLength: maxLength}
}

func (c *ParagraphChunker) Split(_ context.Context, text string) ([]string, error) {
	return Chunk(text, c.maxLength), nil
}

// Chunk splits text on line boundaries, trims every non-blank line and
// greedily joins them with a single space while the joined length stays
// below maxLength.
func Chunk(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	units := paragraphs(text)
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	current, currentLen := "", 0
	for _, u := range units {
		n := utf8.RuneCountInString(u)
		if current == "" {
			current, currentLen = u, n
			continue
		}
		if currentLen+1+n < maxLength {
			current += " " + u
			currentLen += 1 + n
			continue
		}
		chunks = append(chunks, current)
		current, currentLen = u, n
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func paragraphs(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	return out
}
