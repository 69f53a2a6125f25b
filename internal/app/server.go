package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/paperlens-ai/paperlens/internal/api/handlers"
	appMiddleware "github.com/paperlens-ai/paperlens/internal/api/middlewares"
	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/core"
	ingestor "github.com/paperlens-ai/paperlens/internal/core/ingestion_engine"
	"github.com/paperlens-ai/paperlens/internal/core/insight_engine"
	"github.com/paperlens-ai/paperlens/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, docs *services.DocumentService, search *services.SearchService, ing ingestor.Ingestor, insights *insight_engine.Engine) *Server {
	authHandler := handlers.NewAuthHandler(services.NewUserService(db))
	docHandler := handlers.NewDocumentHandler(db, docs, ing)
	insightHandler := handlers.NewInsightHandler(db, insights)
	searchHandler := handlers.NewSearchHandler(db, search)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.GetDocuments)

			protected.Route("/documents/{documentID}", func(doc chi.Router) {
				doc.Get("/", docHandler.GetDocument)
				doc.Delete("/", docHandler.DeleteDocument)
				doc.Post("/process", docHandler.ReprocessDocument)

				doc.Post("/search", searchHandler.SearchChunks)

				doc.Get("/insights", insightHandler.GetCached)
				doc.Get("/insights/plan", insightHandler.GetPlan)
				doc.Post("/insights/groups/{groupIndex}", insightHandler.ExtractGroup)
				doc.Post("/insights/merge", insightHandler.Merge)
				doc.Post("/insights/generate", insightHandler.Generate)
				doc.Post("/insights/regenerate", insightHandler.Regenerate)
			})
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
