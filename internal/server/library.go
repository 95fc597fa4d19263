package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"library-rag/internal/models"
	"library-rag/internal/rag"
	"library-rag/internal/store"
)

// LibraryStore is the slice of the relational store the handlers consume.
// Satisfied by *store.Store; tests substitute an in-memory fake.
type LibraryStore interface {
	Create(ctx context.Context, lib *models.Library) error
	List(ctx context.Context) ([]models.Library, error)
	Get(ctx context.Context, id int64) (*models.Library, error)
	Update(ctx context.Context, id int64, lib *models.Library, columns []string) (*models.Library, error)
	Delete(ctx context.Context, id int64) error
}

type libraryHandler struct {
	store   LibraryStore
	service *rag.Service
}

// libraryPatch carries only the fields present in an update payload;
// pointers distinguish "absent" from "set to empty".
type libraryPatch struct {
	Name       *string `json:"name"`
	Content    *string `json:"content"`
	SourceType *string `json:"source_type"`
	Origin     *string `json:"origin"`
}

func libraryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid library id.")
		return 0, false
	}
	return id, true
}

func (h *libraryHandler) create(w http.ResponseWriter, r *http.Request) {
	var lib models.Library
	if err := json.NewDecoder(r.Body).Decode(&lib); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if strings.TrimSpace(lib.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required.")
		return
	}
	lib.ID = 0

	if err := h.store.Create(r.Context(), &lib); err != nil {
		log.Error().Err(err).Msg("Failed to create library")
		writeError(w, http.StatusInternalServerError, "Failed to create library.")
		return
	}

	// Post-commit hook: the record stands even if indexing fails.
	h.service.SyncLibrary(r.Context(), lib)

	writeJSON(w, http.StatusCreated, lib)
}

func (h *libraryHandler) list(w http.ResponseWriter, r *http.Request) {
	libs, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list libraries")
		writeError(w, http.StatusInternalServerError, "Failed to list libraries.")
		return
	}
	if libs == nil {
		libs = []models.Library{}
	}
	writeJSON(w, http.StatusOK, libs)
}

func (h *libraryHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := libraryID(w, r)
	if !ok {
		return
	}
	lib, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Library not found.")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("library_id", id).Msg("Failed to fetch library")
		writeError(w, http.StatusInternalServerError, "Failed to fetch library.")
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

func (h *libraryHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := libraryID(w, r)
	if !ok {
		return
	}

	var patch libraryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	var lib models.Library
	var columns []string
	if patch.Name != nil {
		lib.Name = *patch.Name
		columns = append(columns, "name")
	}
	if patch.Content != nil {
		lib.Content = *patch.Content
		columns = append(columns, "content")
	}
	if patch.SourceType != nil {
		lib.SourceType = *patch.SourceType
		columns = append(columns, "source_type")
	}
	if patch.Origin != nil {
		lib.Origin = *patch.Origin
		columns = append(columns, "origin")
	}

	updated, err := h.store.Update(r.Context(), id, &lib, columns)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Library not found.")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("library_id", id).Msg("Failed to update library")
		writeError(w, http.StatusInternalServerError, "Failed to update library.")
		return
	}

	// Re-index only when the content field was part of the payload.
	if patch.Content != nil {
		h.service.SyncLibrary(r.Context(), *updated)
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *libraryHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := libraryID(w, r)
	if !ok {
		return
	}

	// De-index before the record goes away; a failure here never blocks
	// the delete.
	h.service.RemoveLibrary(r.Context(), id)

	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Library not found.")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("library_id", id).Msg("Failed to delete library")
		writeError(w, http.StatusInternalServerError, "Failed to delete library.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
