package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"library-rag/internal/chunker"
	"library-rag/internal/config"
	"library-rag/internal/models"
	"library-rag/internal/parser"
	"library-rag/internal/prompt"
	"library-rag/internal/retriever"
	"library-rag/internal/vectordb"
)

// The plain chat path predates the multi-stage pipelines and keeps its
// original ceiling. The pipelines deliberately wait forever: long
// generations must not be truncated mid-answer.
const legacyGenerateTimeout = 70 * time.Second

const chunkSeparator = "\n\n---\n\n"

// Generator is the single-call primitive behind every pipeline: one
// opaque network call to the text generation backend, not retried.
type Generator interface {
	Generate(ctx context.Context, promptText, model string) (string, error)
}

// LibraryReader provides full library records for the extraction pipeline
// and for re-resolving file/url content at indexing time.
type LibraryReader interface {
	Get(ctx context.Context, id int64) (*models.Library, error)
}

// Result is what a pipeline hands back to the endpoint. Analysis carries
// the intermediate extraction/condensation text for the multi-stage
// variants and is empty otherwise.
type Result struct {
	Response string
	Analysis string
}

// Service drives the retrieval-augmented generation pipelines and keeps
// the vector index in sync with library writes. Every request is
// independent; the service holds no per-request state.
type Service struct {
	chunker   *chunker.Chunker
	index     *vectordb.Index
	retriever *retriever.Retriever
	generator Generator
	libraries LibraryReader
	templates config.TemplateConfig
	topK      int
}

func NewService(
	chk *chunker.Chunker,
	index *vectordb.Index,
	retr *retriever.Retriever,
	generator Generator,
	libraries LibraryReader,
	templates config.TemplateConfig,
	topK int,
) *Service {
	return &Service{
		chunker:   chk,
		index:     index,
		retriever: retr,
		generator: generator,
		libraries: libraries,
		templates: templates,
		topK:      topK,
	}
}

// Plain answers a question with no retrieval at all, using the plain
// preprompt template. This is the legacy single-stage path and the only
// one with a generation deadline.
func (s *Service) Plain(ctx context.Context, question, model string) (string, error) {
	template, err := prompt.Load(s.templates.Plain, prompt.QuestionPlaceholder)
	if err != nil {
		return "", err
	}
	fullPrompt := prompt.Assemble(template, question, "", false)

	ctx, cancel := context.WithTimeout(ctx, legacyGenerateTimeout)
	defer cancel()
	return s.generator.Generate(ctx, fullPrompt, model)
}

// DirectRAG answers in a single generation call, with neighbor-expanded
// retrieval context when libraries are selected. With no selection the
// prompt carries no documentation block at all; with a selection that
// retrieves nothing, the block is shown with the not-found marker so the
// model knows retrieval was attempted.
func (s *Service) DirectRAG(ctx context.Context, question, model string, selected []int64) (string, error) {
	template, err := prompt.Load(s.templates.Base, prompt.QuestionPlaceholder)
	if err != nil {
		return "", err
	}

	withContext := len(selected) > 0
	var contextText string
	if withContext {
		docs := s.retriever.Retrieve(ctx, question, selected, s.topK)
		if len(docs) == 0 {
			contextText = prompt.NotFoundMarker
		} else {
			contextText = strings.Join(docs, chunkSeparator)
		}
	}

	fullPrompt := prompt.Assemble(template, question, contextText, withContext)
	return s.generator.Generate(ctx, fullPrompt, model)
}

// ExtractThenAnswer is the two-stage pipeline: stage 1 extracts the
// relevant parts of the selected libraries' full contents, stage 2 answers
// with that analysis as context. With no selection, stage 1 is skipped and
// its output replaced by a fixed marker, costing exactly one generation
// call instead of two.
func (s *Service) ExtractThenAnswer(ctx context.Context, question, model string, selected []int64) (Result, error) {
	base, err := prompt.Load(s.templates.Base, prompt.QuestionPlaceholder)
	if err != nil {
		return Result{}, err
	}

	analysis := prompt.NoLibrariesMarker
	if len(selected) > 0 {
		extraction, err := prompt.Load(s.templates.Extraction, prompt.QuestionPlaceholder, prompt.DocumentationPlaceholder)
		if err != nil {
			return Result{}, err
		}
		libraryText, err := s.libraryContents(ctx, selected)
		if err != nil {
			return Result{}, err
		}

		stage1Prompt := prompt.AssembleExtraction(extraction, question, libraryText)
		analysis, err = s.generator.Generate(ctx, stage1Prompt, model)
		if err != nil {
			return Result{}, fmt.Errorf("extraction stage: %w", err)
		}
	}

	stage2Prompt := prompt.Assemble(base, question, analysis, true)
	response, err := s.generator.Generate(ctx, stage2Prompt, model)
	if err != nil {
		return Result{}, fmt.Errorf("answer stage: %w", err)
	}
	return Result{Response: response, Analysis: analysis}, nil
}

// RAGCondense retrieves neighbor-expanded chunks, condenses them with one
// generation call, then answers with the condensed text as context. When
// retrieval finds nothing the condensation call is skipped and the
// not-found marker flows straight into the answer stage.
func (s *Service) RAGCondense(ctx context.Context, question, model string, selected []int64) (Result, error) {
	base, err := prompt.Load(s.templates.Base, prompt.QuestionPlaceholder)
	if err != nil {
		return Result{}, err
	}

	condensed := prompt.NoLibrariesMarker
	if len(selected) > 0 {
		extraction, err := prompt.Load(s.templates.Extraction, prompt.QuestionPlaceholder, prompt.DocumentationPlaceholder)
		if err != nil {
			return Result{}, err
		}

		docs := s.retriever.Retrieve(ctx, question, selected, s.topK)
		if len(docs) == 0 {
			condensed = prompt.NotFoundMarker
		} else {
			raw := strings.Join(docs, chunkSeparator)
			stage1Prompt := prompt.AssembleExtraction(extraction, question, raw)
			condensed, err = s.generator.Generate(ctx, stage1Prompt, model)
			if err != nil {
				return Result{}, fmt.Errorf("condensation stage: %w", err)
			}
		}
	}

	stage2Prompt := prompt.Assemble(base, question, condensed, true)
	response, err := s.generator.Generate(ctx, stage2Prompt, model)
	if err != nil {
		return Result{}, fmt.Errorf("answer stage: %w", err)
	}
	return Result{Response: response, Analysis: condensed}, nil
}

func (s *Service) libraryContents(ctx context.Context, ids []int64) (string, error) {
	var contents []string
	for _, id := range ids {
		lib, err := s.libraries.Get(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("library_id", id).Msg("Skipping unavailable library")
			continue
		}
		text, err := parser.ResolveContent(ctx, lib)
		if err != nil {
			log.Warn().Err(err).Int64("library_id", id).Msg("Skipping library with unresolvable content")
			continue
		}
		if strings.TrimSpace(text) != "" {
			contents = append(contents, text)
		}
	}
	return strings.Join(contents, "\n---\n"), nil
}

// SyncLibrary is the post-commit indexing hook: it resolves the library's
// content, chunks it and replaces its chunk set in the vector index. The
// relational write has already committed, so failures here are logged with
// the library id for later repair and never propagated; re-saving the
// library repairs a stale index entry.
func (s *Service) SyncLibrary(ctx context.Context, lib models.Library) {
	content, err := parser.ResolveContent(ctx, &lib)
	if err != nil {
		log.Error().Err(err).Int64("library_id", lib.ID).Msg("Failed to resolve library content for indexing")
		return
	}

	chunks, err := s.chunker.Chunk(content)
	if err != nil {
		log.Error().Err(err).Int64("library_id", lib.ID).Msg("Failed to chunk library content")
		return
	}

	if err := s.index.UpsertDocument(ctx, lib.ID, lib.Name, chunks); err != nil {
		log.Error().Err(err).Int64("library_id", lib.ID).Msg("Failed to index library")
	}
}

// RemoveLibrary is the de-indexing counterpart of SyncLibrary, with the
// same swallow-and-log failure policy.
func (s *Service) RemoveLibrary(ctx context.Context, id int64) {
	if err := s.index.DeleteDocument(ctx, id); err != nil {
		log.Error().Err(err).Int64("library_id", id).Msg("Failed to de-index library")
	}
}
