package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc:42:chunk:0", ChunkID(42, 0))
	assert.Equal(t, "doc:7:chunk:13", ChunkID(7, 13))
}

func TestParseChunkID_RoundTrip(t *testing.T) {
	sourceID, index, ok := ParseChunkID(ChunkID(42, 3))
	require.True(t, ok)
	assert.Equal(t, int64(42), sourceID)
	assert.Equal(t, 3, index)
}

func TestParseChunkID_Foreign(t *testing.T) {
	for _, id := range []string{
		"",
		"doc:42",
		"lib:42:chunk:0",
		"doc:forty:chunk:0",
		"doc:42:chunk:zero",
		"doc:42:chunk:0:extra",
	} {
		_, _, ok := ParseChunkID(id)
		assert.False(t, ok, "id %q should not parse", id)
	}
}
