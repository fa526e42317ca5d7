package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/plantwise-cloud/pestsearch/internal/config"
	"github.com/plantwise-cloud/pestsearch/internal/db"
	dbRedis "github.com/plantwise-cloud/pestsearch/internal/db/redis"
	"github.com/plantwise-cloud/pestsearch/internal/domain"
	"github.com/plantwise-cloud/pestsearch/internal/domain/document"
	"github.com/plantwise-cloud/pestsearch/internal/format"
	"github.com/plantwise-cloud/pestsearch/internal/fuse"
	logpkg "github.com/plantwise-cloud/pestsearch/internal/logger"
	"github.com/plantwise-cloud/pestsearch/internal/metrics"
	"github.com/plantwise-cloud/pestsearch/internal/normalize"
	"github.com/plantwise-cloud/pestsearch/internal/querybuilder"
	"github.com/plantwise-cloud/pestsearch/internal/repository/embcache"
	searchrepo "github.com/plantwise-cloud/pestsearch/internal/repository/search"
	"github.com/plantwise-cloud/pestsearch/internal/retrieve"
	chiTransport "github.com/plantwise-cloud/pestsearch/internal/transport/chi"
	openaiEmb "github.com/plantwise-cloud/pestsearch/internal/transport/openai"
	answeruc "github.com/plantwise-cloud/pestsearch/internal/usecase/answer"
	healthuc "github.com/plantwise-cloud/pestsearch/internal/usecase/health"
	"github.com/plantwise-cloud/pestsearch/internal/version"
)

func main() {
	// .env is optional, for local development
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pestsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	embedder := buildEmbedder(cfg.Embedding, store, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Query-side resources: synonym map and canned-answer index. Both degrade
	// gracefully when the resource is missing.
	normalizer := normalize.Load(cfg.Resources.Synonyms, logger)

	canned, err := normalize.BuildCannedIndex(
		ctx, cfg.Resources.CannedAnswers, embedder,
		cfg.Fusion.HardcodedMatchThreshold, logger,
	)
	if err != nil {
		logger.Fatal("Failed to build canned-answer index", zap.Error(err))
	}

	fuseCfg := fusionConfig(cfg.Fusion)
	if err := fuseCfg.Validate(); err != nil {
		logger.Fatal("Invalid fusion config", zap.Error(err))
	}

	retriever := retrieve.New(searchrepo.New(store), logger, cfg.Retrieval.TopK, cfg.Retrieval.InnerK)

	answerSvc := answeruc.New(
		querybuilder.New(normalizer),
		embedder,
		retriever,
		canned,
		fuse.New(logger),
		format.New(),
		fuseCfg,
		logger,
	)

	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(embedder))

	server := chiTransport.NewServer(
		answerSvc, healthSvc, logger,
		cfg.Auth.APIKeys,
		time.Duration(cfg.HTTP.QueryTimeoutSec)*time.Second,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
func buildEmbedder(cfg config.EmbeddingConfig, store db.Store, logger *zap.Logger) domain.BatchEmbedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	var embedder domain.BatchEmbedder = base
	if cfg.Cache() {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost — cache key includes instruction)
	if cfg.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}

	return embedder
}

// fusionConfig converts the YAML section into the per-call fusion value.
func fusionConfig(f config.FusionConfig) fuse.Config {
	return fuse.Config{
		NameWeight:       f.NameWeight,
		TopicalWeight:    f.TopicalWeight,
		DamageWeight:     f.DamageWeight,
		ScoreCutoff:      f.ScoreCutoff,
		HardcodedCutoff:  f.HardcodedCutoff,
		TopN:             f.TopN,
		DownweightSource: document.Source(f.DownweightSource),
		DownweightFactor: f.DownweightFactor,
	}
}

// embeddingHealthChecker adapts the embedder chain to health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.BatchEmbedder
}

func newEmbeddingHealthChecker(embedder domain.BatchEmbedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
