package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/growthlab/internal/cardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *cardservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	uh := NewUploadHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Card edits.
	r.Post("/update-card", h.UpdateCard)
	r.Post("/delete-card", h.DeleteCard)

	// Media.
	r.Post("/upload-image", uh.UploadImage)
	r.Post("/cleanup-images", h.CleanupImages)

	// Sessions.
	r.Get("/sessions", h.ListSessions)
	r.Get("/sessions/{name}", h.GetSession)
	r.Post("/sessions/{name}/sweep", h.SweepSession)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
