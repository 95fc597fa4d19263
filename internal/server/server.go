package server

import (
	"net/http"

	"library-rag/internal/rag"
)

// Config wires the server's collaborators.
type Config struct {
	Store       LibraryStore
	Service     *rag.Service
	CORSOrigins []string
}

// Server is the JSON HTTP API: four chat pipelines plus library CRUD.
type Server struct {
	handler http.Handler
}

func New(cfg Config) *Server {
	ch := &chatHandler{service: cfg.Service}
	lh := &libraryHandler{store: cfg.Store, service: cfg.Service}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", ch.plain)
	mux.HandleFunc("POST /chat-rag", ch.directRAG)
	mux.HandleFunc("POST /chat-pipeline", ch.pipeline)
	mux.HandleFunc("POST /chat-rag-2", ch.ragCondense)

	mux.HandleFunc("POST /libraries", lh.create)
	mux.HandleFunc("GET /libraries", lh.list)
	mux.HandleFunc("GET /libraries/{id}", lh.get)
	mux.HandleFunc("PATCH /libraries/{id}", lh.update)
	mux.HandleFunc("DELETE /libraries/{id}", lh.delete)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Outermost first: recovery must catch everything below it.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware()(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware()(handler)

	return &Server{handler: handler}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
