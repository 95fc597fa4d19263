package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

// Source type of a library's content.
const (
	SourceTypeText = "text"
	SourceTypeFile = "file"
	SourceTypeURL  = "url"
)

// Metadata keys stored with every indexed chunk.
const (
	MetaSourceID   = "source_id"
	MetaChunkIndex = "chunk_index"
	MetaSourceName = "source_name"
)

// Library is a documentation source managed through the CRUD endpoints.
// Content may be empty for file/url sources; it is resolved from Origin
// when the library is indexed.
type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	Name       string `bun:"name,notnull" json:"name"`
	Content    string `bun:"content" json:"content"`
	SourceType string `bun:"source_type,notnull,default:'text'" json:"source_type"`
	Origin     string `bun:"origin" json:"origin"`
}

// Chunk is one contiguous slice of a library's content, the unit of
// embedding and retrieval.
type Chunk struct {
	SourceID int64
	Index    int
	Text     string
}

// ChunkID returns the deterministic vector store key for a chunk position.
// The scheme is stable across re-indexing so upserts replace exact keys and
// sequential neighbors are addressable by arithmetic on the index.
func ChunkID(sourceID int64, index int) string {
	return fmt.Sprintf("doc:%d:chunk:%d", sourceID, index)
}

// ParseChunkID is the inverse of ChunkID. ok is false for foreign ids.
func ParseChunkID(id string) (sourceID int64, index int, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 || parts[0] != "doc" || parts[2] != "chunk" {
		return 0, 0, false
	}
	sourceID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	index, err = strconv.Atoi(parts[3])
	if err != nil {
		return 0, 0, false
	}
	return sourceID, index, true
}
