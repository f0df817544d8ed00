package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custopay/transfer-relay/internal/handler"
)

// SetupRouter sets up the router with handlers
func SetupRouter(h *handler.TransferHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/transfers/prepare", h.Prepare)
	r.Post("/transfers/complete", h.Complete)
	r.Get("/transfers", h.List)
	r.Get("/transfers/{id}", h.Get)
	r.Get("/feepayer", h.FeePayer)

	return r
}
