package retriever

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"library-rag/internal/models"
	"library-rag/internal/vectordb"
)

// Retriever answers queries against the vector index. Retrieval never
// fails a request: any index trouble is logged and surfaced to callers as
// "no context".
type Retriever struct {
	index *vectordb.Index
}

func New(index *vectordb.Index) *Retriever {
	return &Retriever{index: index}
}

// RetrieveTopK returns the texts of the k nearest chunks in ranked order,
// most similar first.
func (r *Retriever) RetrieveTopK(ctx context.Context, query string, allowedSourceIDs []int64, k int) []string {
	hits, err := r.index.Query(ctx, query, allowedSourceIDs, k)
	if err != nil {
		log.Warn().Err(err).Msg("Retrieval failed, continuing without context")
		return nil
	}
	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		texts = append(texts, hit.Text)
	}
	return texts
}

// Retrieve returns the texts of the k nearest chunks expanded with each
// hit's immediate sequential neighbors within the same library.
// Nearest-neighbor hits are often mid-sentence fragments; pulling the
// chunk before and after materially improves grounding, and the batch
// fetch absorbs ids that do not exist.
//
// Expansion is set-based, so ranked order is lost. The results are
// returned in document order instead: sorted by (source_id, chunk_index).
// That ordering is a contract, chosen so sequential fragments of the same
// library read contiguously in the prompt.
func (r *Retriever) Retrieve(ctx context.Context, query string, allowedSourceIDs []int64, k int) []string {
	hits, err := r.index.Query(ctx, query, allowedSourceIDs, k)
	if err != nil {
		log.Warn().Err(err).Msg("Retrieval failed, continuing without context")
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	targets := make(map[string]struct{})
	for _, hit := range hits {
		targets[hit.ID] = struct{}{}
		if hit.ChunkIndex < 0 {
			// Incomplete metadata: keep the hit itself, expand nothing.
			log.Warn().Str("chunk_id", hit.ID).Msg("Hit missing sequence index, skipping neighbor expansion")
			continue
		}
		if hit.ChunkIndex > 0 {
			targets[models.ChunkID(hit.SourceID, hit.ChunkIndex-1)] = struct{}{}
		}
		// The following chunk may not exist; the fetch simply omits it.
		targets[models.ChunkID(hit.SourceID, hit.ChunkIndex+1)] = struct{}{}
	}

	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	texts := r.index.FetchByIDs(ctx, ids)

	found := make([]string, 0, len(texts))
	for id := range texts {
		found = append(found, id)
	}
	sort.Slice(found, func(i, j int) bool {
		si, ii, _ := models.ParseChunkID(found[i])
		sj, ij, _ := models.ParseChunkID(found[j])
		if si != sj {
			return si < sj
		}
		return ii < ij
	})

	ordered := make([]string, 0, len(found))
	for _, id := range found {
		ordered = append(ordered, texts[id])
	}
	return ordered
}
