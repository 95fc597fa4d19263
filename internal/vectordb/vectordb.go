package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"library-rag/internal/models"
)

// Embedder turns text into vectors. Satisfied by langchaingo's
// embeddings.EmbedderImpl; tests substitute a fake.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Hit is one nearest-neighbor result with its chunk metadata.
type Hit struct {
	ID         string
	Text       string
	SourceID   int64
	ChunkIndex int
	SourceName string
	Similarity float32
}

// Index stores chunk embeddings plus metadata in a chromem-go collection
// and answers nearest-neighbor queries restricted to a set of libraries.
//
// If the backing store cannot be opened the Index initializes into a
// disabled state: every operation becomes a no-op or empty result instead
// of an error, so retrieval features vanish silently rather than taking
// the service down.
//
// Writes are serialized: upsert is delete-then-insert, which is not atomic,
// and concurrent re-indexing of the same library must not interleave.
// Readers do not take the write lock; a query racing a re-index may see a
// stale or partial chunk set, which is acceptable.
type Index struct {
	collection *chromem.Collection
	embedder   Embedder
	disabled   bool

	writeMu sync.Mutex
}

// New opens (or creates) the persistent collection at dbPath. inMemory is
// for tests. A failure to open the store is logged once and yields a
// disabled index, not an error.
func New(dbPath, collectionName string, inMemory bool, embedder Embedder) *Index {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, false)
		if err != nil {
			log.Warn().Err(err).Str("db_path", dbPath).
				Msg("Vector store unavailable, retrieval features disabled")
			return &Index{disabled: true}
		}
	}

	// Embeddings are always supplied explicitly, so the collection's own
	// embedding function is never invoked.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		log.Warn().Err(err).Str("collection", collectionName).
			Msg("Vector collection unavailable, retrieval features disabled")
		return &Index{disabled: true}
	}

	return &Index{collection: collection, embedder: embedder}
}

// Disabled reports whether the index came up without a usable backend.
func (x *Index) Disabled() bool {
	return x.disabled
}

// UpsertDocument replaces the indexed chunk set for a library: any chunks
// previously stored under sourceID are deleted, then each text in chunks is
// embedded and stored under models.ChunkID(sourceID, i). An empty chunk
// slice deletes the old chunks and stores nothing; that is a documented
// no-op, not an error.
func (x *Index) UpsertDocument(ctx context.Context, sourceID int64, sourceName string, chunks []string) error {
	if x.disabled {
		return nil
	}

	x.writeMu.Lock()
	defer x.writeMu.Unlock()

	if err := x.deleteLocked(ctx, sourceID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		log.Debug().Int64("source_id", sourceID).Msg("No chunks to index")
		return nil
	}

	vectors, err := x.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks for library %d: %w", len(chunks), sourceID, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, text := range chunks {
		docs[i] = chromem.Document{
			ID:      models.ChunkID(sourceID, i),
			Content: text,
			Metadata: map[string]string{
				models.MetaSourceID:   strconv.FormatInt(sourceID, 10),
				models.MetaChunkIndex: strconv.Itoa(i),
				models.MetaSourceName: sourceName,
			},
			Embedding: vectors[i],
		}
	}

	if err := x.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("storing %d chunks for library %d: %w", len(docs), sourceID, err)
	}
	log.Info().Int64("source_id", sourceID).Int("chunks", len(docs)).Msg("Indexed library")
	return nil
}

// DeleteDocument removes all chunks stored under sourceID. Deleting a
// library that was never indexed is a no-op.
func (x *Index) DeleteDocument(ctx context.Context, sourceID int64) error {
	if x.disabled {
		return nil
	}
	x.writeMu.Lock()
	defer x.writeMu.Unlock()
	return x.deleteLocked(ctx, sourceID)
}

func (x *Index) deleteLocked(ctx context.Context, sourceID int64) error {
	where := map[string]string{models.MetaSourceID: strconv.FormatInt(sourceID, 10)}
	if err := x.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("deleting chunks for library %d: %w", sourceID, err)
	}
	return nil
}

// Query returns the k nearest chunks to queryText among the given
// libraries, most similar first; equal similarities are broken by chunk
// position (source_id, chunk_index), so the result order is deterministic.
// An empty allowed set or a disabled index yields an empty result, never
// an error.
//
// chromem's where filter is single-value equality, so the set restriction
// is applied here after an exhaustive similarity pass; chromem scores
// every document regardless, so this costs nothing extra.
func (x *Index) Query(ctx context.Context, queryText string, allowedSourceIDs []int64, k int) ([]Hit, error) {
	if x.disabled || len(allowedSourceIDs) == 0 || k <= 0 {
		return nil, nil
	}
	total := x.collection.Count()
	if total == 0 {
		return nil, nil
	}

	queryVector, err := x.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := x.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryVector,
		NResults:       total,
	})
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	allowed := make(map[int64]struct{}, len(allowedSourceIDs))
	for _, id := range allowedSourceIDs {
		allowed[id] = struct{}{}
	}

	var hits []Hit
	for _, res := range results {
		hit, ok := hitFromResult(res)
		if !ok {
			// No source_id means the chunk can never satisfy the
			// library restriction.
			log.Warn().Str("chunk_id", res.ID).Msg("Skipping chunk without source metadata")
			continue
		}
		if _, ok := allowed[hit.SourceID]; !ok {
			continue
		}
		hits = append(hits, hit)
	}

	// chromem ranks by similarity but leaves tie order unspecified; pin
	// ties to chunk position so equal-score results come back in a fixed
	// order.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].SourceID != hits[j].SourceID {
			return hits[i].SourceID < hits[j].SourceID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// FetchByIDs is a best-effort batch lookup: ids that have no stored chunk
// are simply absent from the result.
func (x *Index) FetchByIDs(ctx context.Context, ids []string) map[string]string {
	if x.disabled {
		return nil
	}
	texts := make(map[string]string, len(ids))
	for _, id := range ids {
		doc, err := x.collection.GetByID(ctx, id)
		if err != nil {
			continue
		}
		texts[id] = doc.Content
	}
	return texts
}

func hitFromResult(res chromem.Result) (Hit, bool) {
	sourceStr, ok := res.Metadata[models.MetaSourceID]
	if !ok {
		return Hit{}, false
	}
	sourceID, err := strconv.ParseInt(sourceStr, 10, 64)
	if err != nil {
		return Hit{}, false
	}
	// A missing or mangled sequence index degrades to -1; the retriever
	// then expands nothing around this hit.
	chunkIndex := -1
	if indexStr, ok := res.Metadata[models.MetaChunkIndex]; ok {
		if n, err := strconv.Atoi(indexStr); err == nil {
			chunkIndex = n
		}
	}
	return Hit{
		ID:         res.ID,
		Text:       res.Content,
		SourceID:   sourceID,
		ChunkIndex: chunkIndex,
		SourceName: res.Metadata[models.MetaSourceName],
		Similarity: res.Similarity,
	}, true
}
