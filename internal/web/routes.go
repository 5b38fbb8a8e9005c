package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/lookalike/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	labelsHandler := handlers.NewLabelsHandler(s.config.Images.Root, s.store, s.log)
	matchHandler := handlers.NewMatchHandler(s.runner, s.config.Server.UploadDir, s.config.Server.MaxUploadMB, s.log)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		r.Get("/labels", labelsHandler.List)
		r.Get("/labels/{name}", labelsHandler.Get)

		r.Post("/match", matchHandler.Match)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
}
