package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/revival-api/internal/api"
	apiMiddleware "github.com/phrazzld/revival-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	generationHandler := api.NewGenerationHandler(app.orchestrator, app.ledger, app.logger)
	userHandler := api.NewUserHandler(app.provisioner, app.logger)
	cronHandler := api.NewCronHandler(app.sweeper, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/generations", generationHandler.CreateGeneration)
		r.Post("/users", userHandler.RegisterUser)
		r.Get("/users/{userID}/quota", generationHandler.GetQuota)

		// External schedulers drive recovery on platforms where the
		// in-process ticker cannot be relied upon.
		r.Post("/internal/sweep", cronHandler.Sweep)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
