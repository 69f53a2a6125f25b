package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/core"
	db "github.com/paperlens-ai/paperlens/internal/core/database"
	"github.com/paperlens-ai/paperlens/internal/core/extract"
	"github.com/paperlens-ai/paperlens/internal/core/ingestion_engine"
	"github.com/paperlens-ai/paperlens/internal/core/insight_engine"
	"github.com/paperlens-ai/paperlens/internal/core/llm"
	objectclient "github.com/paperlens-ai/paperlens/internal/core/object-client"
	"github.com/paperlens-ai/paperlens/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	DocIngestor  ingestion_engine.Ingestor
	Insights     *insight_engine.Engine
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
	}

	ingCfg := &ingestion_engine.IngestConfig{
		TargetTokens:  cfg.ChunkTargetTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
		EmbedDim:      cfg.EmbedDim,
	}
	docIngestor := ingestion_engine.NewDocumentIngestor(dbClient, objClient, embedder, extract.ForContentType, ingCfg)

	insightEngine := insight_engine.NewEngine(dbClient, llmProvider)

	docService := services.NewDocumentService(dbClient, objClient, cfg.BucketName)
	searchService := services.NewSearchService(dbClient, embedder)

	server := NewServer(cfg, dbClient, docService, searchService, docIngestor, insightEngine)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		DocIngestor:  docIngestor,
		Insights:     insightEngine,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
