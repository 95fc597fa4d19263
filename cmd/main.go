package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"library-rag/internal/chunker"
	"library-rag/internal/config"
	"library-rag/internal/embedding"
	"library-rag/internal/llm"
	"library-rag/internal/rag"
	"library-rag/internal/retriever"
	"library-rag/internal/server"
	"library-rag/internal/store"
	"library-rag/internal/vectordb"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := store.Connect(&cfg.Database)
	defer db.Close()
	libraries := store.New(db)

	seeded, err := libraries.Init(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing database")
	}

	embedder, err := embedding.NewOllamaEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	// A missing vector store backend disables retrieval instead of
	// aborting startup; the index logs that once itself.
	index := vectordb.New(cfg.RAG.DBPath, cfg.RAG.Collection, false, embedder)

	service := rag.NewService(
		chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		index,
		retriever.New(index),
		llm.NewClient(&cfg.GenLLM),
		libraries,
		cfg.Templates,
		cfg.RAG.TopK,
	)

	for _, lib := range seeded {
		service.SyncLibrary(ctx, lib)
	}

	srv := server.New(server.Config{
		Store:       libraries,
		Service:     service,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
	log.Info().Msg("Server stopped")
}
