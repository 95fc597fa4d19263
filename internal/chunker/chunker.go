package chunker

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Separator priority: paragraph break, line break, sentence punctuation,
// word boundary, then single characters as a last resort.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits library content into overlapping windows suitable for
// embedding. Splitting is deterministic: the same text and parameters
// always produce the same spans in the same order.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

func New(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(separators),
		),
	}
}

// Chunk returns the ordered text spans for content. Empty or whitespace-only
// content yields nil; callers treat that as nothing to index.
func (c *Chunker) Chunk(content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return c.splitter.SplitText(content)
}
