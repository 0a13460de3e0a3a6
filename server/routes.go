package server

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(analyzer Analyzer, store Store, options Options, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)

	h := NewHandlers(analyzer, store, options, requestTimeout)

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JSONContentType)

		r.Get("/options", h.Options)
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/augment", h.Augment)
			r.Post("/diaries", h.SaveDiary)
			r.Get("/diaries", h.Diaries)
			r.Post("/activities", h.LogActivity)
			r.Get("/responses", h.Responses)
		})
	})

	return r
}
