package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-rag/internal/chunker"
	"library-rag/internal/config"
	"library-rag/internal/models"
	"library-rag/internal/prompt"
	"library-rag/internal/retriever"
	"library-rag/internal/vectordb"
)

type fakeEmbedder struct{}

var keywords = []string{"alpha", "beta", "gamma"}

func embed(text string) []float32 {
	v := make([]float32, len(keywords)+1)
	v[0] = 0.1
	for i, kw := range keywords {
		v[i+1] = float32(strings.Count(strings.ToLower(text), kw))
	}
	return v
}

func (fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embed(text)
	}
	return vectors, nil
}

func (fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

// fakeGenerator records every prompt it is asked to complete.
type fakeGenerator struct {
	prompts []string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, promptText, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.prompts = append(g.prompts, promptText)
	return fmt.Sprintf("reply %d", len(g.prompts)), nil
}

type fakeLibraries map[int64]*models.Library

func (f fakeLibraries) Get(_ context.Context, id int64) (*models.Library, error) {
	lib, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("library %d not found", id)
	}
	return lib, nil
}

func writeTemplates(t *testing.T) config.TemplateConfig {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	return config.TemplateConfig{
		Plain:      write("preprompt.txt", "PLAIN Q: [INSERT QUESTION]"),
		Base:       write("preprompt-2.txt", "BASE Q: [INSERT QUESTION]"),
		Extraction: write("retrieval.txt", "EXTRACT FROM:\n[DOCUMENTATION_TEXT]\nFOR: [INSERT QUESTION]"),
	}
}

func newTestService(t *testing.T, gen Generator, libs fakeLibraries) (*Service, *vectordb.Index) {
	t.Helper()
	index := vectordb.New("", "test_collection", true, fakeEmbedder{})
	require.False(t, index.Disabled())
	svc := NewService(chunker.New(1000, 150), index, retriever.New(index), gen, libs, writeTemplates(t), 5)
	return svc, index
}

func TestPlain(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)

	out, err := svc.Plain(context.Background(), "why?", "")
	require.NoError(t, err)
	assert.Equal(t, "reply 1", out)

	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "PLAIN Q: why?", gen.prompts[0])
	assert.NotContains(t, gen.prompts[0], "Relevant Documentation")
}

func TestPlain_MissingTemplate(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)
	svc.templates.Plain = filepath.Join(t.TempDir(), "missing.txt")

	_, err := svc.Plain(context.Background(), "why?", "")
	require.Error(t, err)
	assert.Empty(t, gen.prompts)
}

func TestDirectRAG_NoSelection(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)

	out, err := svc.DirectRAG(context.Background(), "why?", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "reply 1", out)

	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "BASE Q: why?", gen.prompts[0])
}

func TestDirectRAG_WithRetrievedContext(t *testing.T) {
	gen := &fakeGenerator{}
	svc, index := newTestService(t, gen, nil)
	require.NoError(t, index.UpsertDocument(context.Background(), 1, "lib", []string{"alpha docs"}))

	_, err := svc.DirectRAG(context.Background(), "alpha", "", []int64{1})
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Relevant Documentation:\n")
	assert.Contains(t, gen.prompts[0], "alpha docs")
	assert.Contains(t, gen.prompts[0], "BASE Q: alpha")
}

// Selected libraries with nothing retrieved still show the documentation
// block, carrying the not-found marker.
func TestDirectRAG_SelectionWithoutResults(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)

	_, err := svc.DirectRAG(context.Background(), "why?", "", []int64{42})
	require.NoError(t, err)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Relevant Documentation:\n")
	assert.Contains(t, gen.prompts[0], prompt.NotFoundMarker)
}

func TestDirectRAG_GeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("backend exploded")}
	svc, _ := newTestService(t, gen, nil)

	_, err := svc.DirectRAG(context.Background(), "why?", "", nil)
	assert.Error(t, err)
}

// With no libraries selected the extraction stage is skipped entirely:
// one generation call, analysis pinned to the marker.
func TestExtractThenAnswer_NoSelection(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)

	result, err := svc.ExtractThenAnswer(context.Background(), "why?", "", nil)
	require.NoError(t, err)

	assert.Equal(t, prompt.NoLibrariesMarker, result.Analysis)
	assert.Equal(t, "reply 1", result.Response)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], prompt.NoLibrariesMarker)
	assert.Contains(t, gen.prompts[0], "BASE Q: why?")
}

func TestExtractThenAnswer_WithSelection(t *testing.T) {
	gen := &fakeGenerator{}
	libs := fakeLibraries{
		1: {ID: 1, Name: "one", Content: "contents of library one", SourceType: models.SourceTypeText},
		2: {ID: 2, Name: "two", Content: "contents of library two", SourceType: models.SourceTypeText},
	}
	svc, _ := newTestService(t, gen, libs)

	result, err := svc.ExtractThenAnswer(context.Background(), "why?", "", []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 2)

	// Stage 1 sees both libraries' full contents and the question.
	assert.Contains(t, gen.prompts[0], "contents of library one")
	assert.Contains(t, gen.prompts[0], "contents of library two")
	assert.Contains(t, gen.prompts[0], "FOR: why?")

	// Stage 2 sees stage 1's output as context.
	assert.Equal(t, "reply 1", result.Analysis)
	assert.Contains(t, gen.prompts[1], "reply 1")
	assert.Equal(t, "reply 2", result.Response)
}

// Unknown ids in the selection are skipped, not fatal.
func TestExtractThenAnswer_SkipsMissingLibraries(t *testing.T) {
	gen := &fakeGenerator{}
	libs := fakeLibraries{
		1: {ID: 1, Name: "one", Content: "contents of library one", SourceType: models.SourceTypeText},
	}
	svc, _ := newTestService(t, gen, libs)

	_, err := svc.ExtractThenAnswer(context.Background(), "why?", "", []int64{1, 99})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "contents of library one")
}

func TestRAGCondense_NoSelection(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)

	result, err := svc.RAGCondense(context.Background(), "why?", "", nil)
	require.NoError(t, err)
	assert.Equal(t, prompt.NoLibrariesMarker, result.Analysis)
	require.Len(t, gen.prompts, 1)
}

// Retrieval that finds nothing skips the condensation call; the not-found
// marker flows straight into the answer stage.
func TestRAGCondense_NothingRetrieved(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(t, gen, nil)

	result, err := svc.RAGCondense(context.Background(), "why?", "", []int64{1})
	require.NoError(t, err)
	assert.Equal(t, prompt.NotFoundMarker, result.Analysis)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], prompt.NotFoundMarker)
}

func TestRAGCondense_Full(t *testing.T) {
	gen := &fakeGenerator{}
	svc, index := newTestService(t, gen, nil)
	require.NoError(t, index.UpsertDocument(context.Background(), 1, "lib", []string{"alpha docs"}))

	result, err := svc.RAGCondense(context.Background(), "alpha", "", []int64{1})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 2)

	assert.Contains(t, gen.prompts[0], "alpha docs")
	assert.Equal(t, "reply 1", result.Analysis)
	assert.Contains(t, gen.prompts[1], "reply 1")
	assert.Equal(t, "reply 2", result.Response)
}

func TestSyncLibrary_IndexesAndReplaces(t *testing.T) {
	ctx := context.Background()
	svc, index := newTestService(t, &fakeGenerator{}, nil)

	lib := models.Library{ID: 1, Name: "lib", Content: "alpha content", SourceType: models.SourceTypeText}
	svc.SyncLibrary(ctx, lib)

	hits, err := index.Query(ctx, "alpha", []int64{1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alpha content", hits[0].Text)

	// Re-saving with new content replaces the chunk set.
	lib.Content = "beta content"
	svc.SyncLibrary(ctx, lib)

	hits, err = index.Query(ctx, "alpha", []int64{1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "beta content", hits[0].Text)
}

func TestRemoveLibrary(t *testing.T) {
	ctx := context.Background()
	svc, index := newTestService(t, &fakeGenerator{}, nil)

	svc.SyncLibrary(ctx, models.Library{ID: 1, Name: "lib", Content: "alpha", SourceType: models.SourceTypeText})
	svc.RemoveLibrary(ctx, 1)

	hits, err := index.Query(ctx, "alpha", []int64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// Indexing is a best-effort side effect: an empty library indexes nothing
// and fails nothing.
func TestSyncLibrary_EmptyContent(t *testing.T) {
	ctx := context.Background()
	svc, index := newTestService(t, &fakeGenerator{}, nil)

	svc.SyncLibrary(ctx, models.Library{ID: 1, Name: "lib", SourceType: models.SourceTypeText})

	hits, err := index.Query(ctx, "alpha", []int64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
