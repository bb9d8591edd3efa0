// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/inkwell-ai/inkwell/cmd/inkwell-api/handlers"
	"github.com/inkwell-ai/inkwell/cmd/inkwell-api/middleware"
	"github.com/inkwell-ai/inkwell/internal/config"
	"github.com/inkwell-ai/inkwell/internal/objstore"
	"github.com/inkwell-ai/inkwell/internal/observability"
	"github.com/inkwell-ai/inkwell/internal/pipeline"
	"github.com/inkwell-ai/inkwell/internal/storage"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(
	logger *observability.Logger,
	cfg *config.Config,
	orchestrator *pipeline.Orchestrator,
	cardRepo *storage.FlashcardRepository,
	objects objstore.Store,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"inkwell"}`))
	})

	jobsHandler := handlers.NewJobsHandler(logger, orchestrator, objects, cfg.Server.MaxUploadBytes)
	exportsHandler := handlers.NewExportsHandler(logger, orchestrator)
	cardsHandler := handlers.NewFlashcardsHandler(logger, orchestrator, cardRepo)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Owner)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobsHandler.Submit)
			r.Post("/upload", jobsHandler.SubmitUpload)
			r.Get("/", jobsHandler.List)

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", jobsHandler.Get)
				r.Patch("/", jobsHandler.Rename)
				r.Delete("/", jobsHandler.Delete)
				r.Get("/result", jobsHandler.Result)
				r.Post("/cancel", jobsHandler.Cancel)

				r.Route("/exports/{format}", func(r chi.Router) {
					r.Get("/", exportsHandler.Download)
					r.Post("/", exportsHandler.Regenerate)
				})

				r.Route("/flashcards", func(r chi.Router) {
					r.Get("/", cardsHandler.List)
					r.Post("/", cardsHandler.Create)
					r.Put("/{cardID}", cardsHandler.Update)
					r.Delete("/{cardID}", cardsHandler.Delete)
				})
			})
		})
	})

	return r
}
