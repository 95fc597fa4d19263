package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"library-rag/internal/rag"
)

type chatRequest struct {
	Prompt            string  `json:"prompt"`
	Model             string  `json:"model"`
	SelectedLibraries []int64 `json:"selected_libraries"`
}

type chatResponse struct {
	Response string `json:"response"`
	Analysis string `json:"analysis,omitempty"`
}

type chatHandler struct {
	service *rag.Service
}

// decodeChat rejects a missing prompt before any retrieval or generation
// work begins.
func decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return chatRequest{}, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required.")
		return chatRequest{}, false
	}
	return req, true
}

func (h *chatHandler) plain(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	response, err := h.service.Plain(r.Context(), req.Prompt, req.Model)
	if err != nil {
		log.Error().Err(err).Msg("Plain chat failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

func (h *chatHandler) directRAG(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	response, err := h.service.DirectRAG(r.Context(), req.Prompt, req.Model, req.SelectedLibraries)
	if err != nil {
		log.Error().Err(err).Msg("RAG chat failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

func (h *chatHandler) pipeline(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	result, err := h.service.ExtractThenAnswer(r.Context(), req.Prompt, req.Model, req.SelectedLibraries)
	if err != nil {
		log.Error().Err(err).Msg("Pipeline chat failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: result.Response, Analysis: result.Analysis})
}

func (h *chatHandler) ragCondense(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChat(w, r)
	if !ok {
		return
	}
	result, err := h.service.RAGCondense(r.Context(), req.Prompt, req.Model, req.SelectedLibraries)
	if err != nil {
		log.Error().Err(err).Msg("RAG condense chat failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: result.Response, Analysis: result.Analysis})
}
