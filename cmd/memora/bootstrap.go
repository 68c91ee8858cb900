package memora

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memora-ai/memora"
	"github.com/memora-ai/memora/pkg/config"
	"github.com/memora-ai/memora/pkg/crossencoder"
	"github.com/memora-ai/memora/pkg/embedder"
	"github.com/memora-ai/memora/pkg/llm"
	"github.com/memora-ai/memora/pkg/logger"
	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/store/badgerstore"
	"github.com/memora-ai/memora/pkg/store/neo4jstore"
	"github.com/memora-ai/memora/pkg/telemetry"
)

// buildLogger builds the process logger, layering the Parquet error sink on
// top when telemetry is configured.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	base := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Telemetry.ParquetPath == "" {
		return base, nil
	}
	handler, err := telemetry.NewParquetHandler(base.Handler(), cfg.Telemetry.ParquetPath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "memory", "":
		s := store.NewMemoryStore()
		s.SetBM25Params(cfg.Retrieval.BM25K1, cfg.Retrieval.BM25B)
		return s, nil
	case "badger":
		return badgerstore.Open(badgerstore.Options{
			Path:   cfg.Database.URI,
			BM25K1: cfg.Retrieval.BM25K1,
			BM25B:  cfg.Retrieval.BM25B,
		})
	case "neo4j":
		return neo4jstore.New(ctx, cfg.Database.URI, cfg.Database.Username,
			cfg.Database.Password, cfg.Database.Database, cfg.Embedding.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// buildMemory assembles the full engine from configuration.
func buildMemory(ctx context.Context, cfg *config.Config, log *slog.Logger) (*memora.Memory, error) {
	st, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	var emb embedder.Client
	if cfg.Embedding.APIKey != "" || cfg.Embedding.BaseURL != "" {
		emb, err = embedder.NewResilientClient(embedder.Config{
			Provider:   embedder.Provider(cfg.Embedding.Provider),
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
	} else {
		log.Warn("no embedding credentials, semantic retrieval disabled")
	}

	var chat llm.Client
	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		chat, err = llm.NewResilientClient(llm.Config{
			Provider:    llm.Provider(cfg.LLM.Provider),
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
	} else {
		log.Warn("no llm credentials, think and opinion formation disabled")
	}

	scorer, err := crossencoder.NewClient(crossencoder.Config{
		Provider: crossencoder.Provider(cfg.Reranker.Provider),
		LLM:      chat,
	})
	if err != nil {
		return nil, fmt.Errorf("cross-encoder: %w", err)
	}

	opts := memora.DefaultOptions()
	opts.GateCapacity = cfg.Retrieval.GateCapacity
	opts.EntityThreshold = cfg.Retrieval.EntityThreshold
	opts.SemanticThreshold = cfg.Retrieval.SemanticThreshold
	opts.MMRLambda = &cfg.Retrieval.MMRLambda
	opts.DefaultBudget = cfg.Retrieval.DefaultBudget
	opts.DefaultTopK = cfg.Retrieval.DefaultTopK
	opts.OpinionWorkers = cfg.Opinions.Workers
	opts.OpinionQueueSize = cfg.Opinions.QueueSize
	if cfg.Retrieval.TemporalWindow > 0 {
		opts.TemporalWindow = cfg.Retrieval.TemporalWindow
	}

	return memora.New(st, emb, scorer, chat, opts, log), nil
}
