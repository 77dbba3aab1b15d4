package chunker

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"

	"rag-memory/internal/domain"
)

// DefaultTokenLimit matches the budget commonly used for sentence embedders.
const DefaultTokenLimit = 400

// TokenChunker applies the paragraph packing rule with a token budget
// instead of a character budget: units are joined only while the total stays
// below the limit.
type TokenChunker struct {
	counter domain.TokenCounter
	limit   int
}

func NewTokenChunker(counter domain.TokenCounter, limit int) *TokenChunker {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}
	if counter == nil {
		counter = NewWordCounter()
	}
	return &TokenChunker{counter: counter, limit: limit}
}

func (c *TokenChunker) Split(ctx context.Context, text string) ([]string, error) {
	units := paragraphs(text)
	if len(units) == 0 {
		return nil, nil
	}

	var chunks []string
	current, currentTokens := "", 0
	for _, u := range units {
		n, err := c.counter.CountTokens(ctx, u)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to count tokens")
		}
		if current != "" && currentTokens+n >= c.limit {
			chunks = append(chunks, current)
			current, currentTokens = "", 0
		}
		if current == "" {
			current = u
		} else {
			current += " " + u
		}
		currentTokens += n
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

// WordCounter approximates tokens by counting words and punctuation marks.
type WordCounter struct {
	pattern *regexp.Regexp
}

func NewWordCounter() *WordCounter {
	return &WordCounter{pattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*|[^\s\p{L}\p{N}]`)}
}

func (w *WordCounter) CountTokens(_ context.Context, text string) (int, error) {
	return len(w.pattern.FindAllStringIndex(text, -1)), nil
}
