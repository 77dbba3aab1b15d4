package chunker_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/chunker"
)

func TestChunkEmptyInput(t *testing.T) {
	gt.A(t, chunker.Chunk("", 50)).Length(0)
	gt.A(t, chunker.Chunk(" \n\n \t\n", 50)).Length(0)
}

func TestChunkThreeShortParagraphs(t *testing.T) {
	text := "The quarterly report is ready.\n\nKelly owns the budget review.\n\nShip the invoice on Friday."
	chunks := chunker.Chunk(text, 50)
	gt.A(t, chunks).Length(3)
	for _, c := range chunks {
		gt.True(t, utf8.RuneCountInString(c) <= 50)
	}
}

func TestChunkMergesWhileBelowLimit(t *testing.T) {
	text := "alpha\nbeta\ngamma"
	chunks := chunker.Chunk(text, 100)
	gt.A(t, chunks).Length(1)
	gt.Equal(t, chunks[0], "alpha beta gamma")
}

func TestChunkOversizedParagraphStandsAlone(t *testing.T) {
	long := strings.Repeat("x", 80)
	text := "short one\n" + long + "\nshort two"
	chunks := chunker.Chunk(text, 30)
	gt.Equal(t, chunks, []string{"short one", long, "short two"})
}

func TestChunkReproducesLinesInOrder(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, strings.Repeat("word ", i%7+1)+"end")
	}
	text := strings.Join(lines, "\n\n")

	for _, max := range []int{10, 40, 120, 512} {
		chunks := chunker.Chunk(text, max)
		var rebuilt []string
		for _, c := range chunks {
			if utf8.RuneCountInString(c) > max {
				// only a single paragraph may overflow
				gt.True(t, strings.Count(c, "end") == 1)
			}
			rebuilt = append(rebuilt, c)
		}
		var trimmed []string
		for _, l := range lines {
			trimmed = append(trimmed, strings.TrimSpace(l))
		}
		gt.Equal(t, strings.Join(rebuilt, " "), strings.Join(trimmed, " "))
	}
}

func TestParagraphChunkerDefaults(t *testing.T) {
	c := chunker.NewParagraphChunker(0)
	chunks, err := c.Split(context.Background(), strings.Repeat("a\n", 300))
	gt.NoError(t, err)
	for _, ch := range chunks {
		gt.True(t, utf8.RuneCountInString(ch) < chunker.DefaultMaxLength)
	}
}

type fixedCounter struct{ perUnit int }

func (f fixedCounter) CountTokens(_ context.Context, _ string) (int, error) { return f.perUnit, nil }

func TestTokenChunkerFlushRule(t *testing.T) {
	c := chunker.NewTokenChunker(fixedCounter{perUnit: 4}, 10)
	chunks, err := c.Split(context.Background(), "a\nb\nc\nd\ne")
	gt.NoError(t, err)
	gt.Equal(t, chunks, []string{"a b", "c d", "e"})
}

func TestTokenChunkerStaysBelowLimit(t *testing.T) {
	c := chunker.NewTokenChunker(fixedCounter{perUnit: 4}, 8)
	chunks, err := c.Split(context.Background(), "a\nb\nc")
	gt.NoError(t, err)
	gt.Equal(t, chunks, []string{"a", "b", "c"})

	c = chunker.NewTokenChunker(fixedCounter{perUnit: 4}, 9)
	chunks, err = c.Split(context.Background(), "a\nb\nc")
	gt.NoError(t, err)
	gt.Equal(t, chunks, []string{"a b", "c"})
}

func TestTokenChunkerOversizedUnit(t *testing.T) {
	c := chunker.NewTokenChunker(nil, 3)
	chunks, err := c.Split(context.Background(), "one two three four five\nsix")
	gt.NoError(t, err)
	gt.Equal(t, chunks, []string{"one two three four five", "six"})
}

func TestWordCounter(t *testing.T) {
	n, err := chunker.NewWordCounter().CountTokens(context.Background(), "Kelly's report, v2 is done.")
	gt.NoError(t, err)
	gt.Equal(t, n, 7)
}
