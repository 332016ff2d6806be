package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/trunov/optihub/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/ping", h.Ping)

	r.Route("/api", func(r chi.Router) {
		r.Post("/metadata", h.IngestMetadata)
		r.Post("/media", h.UploadMedia)
		r.Get("/media/{id}", h.GetMedia)
		r.Post("/media/{id}/renditions", h.RegenerateRenditions)
		r.Get("/stats", h.GetStats)
	})

	return r
}
