package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/growthlab/internal/cardservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *cardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *cardservice.Service) *Handler {
	return &Handler{svc: svc}
}

// UpdateCard handles POST /api/update-card.
//
//	@Summary		Replace one card of a session
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpdateCardRequest	true	"Card edit"
//	@Success		200		{object}	UpdateCardResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/update-card [post]
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var req UpdateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.UpdateCard(r.Context(), cardservice.UpdateRequest{
		Session:        req.SessionFile,
		CardIndex:      *req.CardIndex,
		Content:        *req.Content,
		UploadedImages: req.UploadedImages,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateCardResponse{Success: true, UpdateResult: res})
}

// DeleteCard handles POST /api/delete-card.
//
//	@Summary		Delete one card of a session
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteCardRequest	true	"Card to delete"
//	@Success		200		{object}	DeleteCardResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/delete-card [post]
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	var req DeleteCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.DeleteCard(r.Context(), cardservice.DeleteRequest{
		Session:        req.SessionFile,
		CardIndex:      *req.CardIndex,
		UploadedImages: req.UploadedImages,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteCardResponse{Success: true, DeleteResult: res})
}

// CleanupImages handles POST /api/cleanup-images.
//
//	@Summary		Discard uploads from an abandoned edit
//	@Tags			media
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CleanupImagesRequest	true	"Uploaded paths"
//	@Success		200		{object}	CleanupImagesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cleanup-images [post]
func (h *Handler) CleanupImages(w http.ResponseWriter, r *http.Request) {
	var req CleanupImagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n := h.svc.Cleanup(r.Context(), req.Images)
	writeJSON(w, http.StatusOK, CleanupImagesResponse{Success: true, Deleted: n})
}

// ListSessions handles GET /api/sessions.
//
//	@Summary		List session documents
//	@Tags			sessions
//	@Produce		json
//	@Success		200	{object}	SessionListResponse
//	@Security		BearerAuth
//	@Router			/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.ListSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: names})
}

// GetSession handles GET /api/sessions/{name}.
//
//	@Summary		Get a session split into cards
//	@Tags			sessions
//	@Produce		json
//	@Param			name	path		string	true	"Session name"
//	@Success		200		{object}	SessionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{name} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SweepSession handles POST /api/sessions/{name}/sweep.
//
//	@Summary		Delete media of a session that no document references
//	@Tags			media
//	@Produce		json
//	@Param			name	path		string	true	"Session name"
//	@Success		200		{object}	SweepResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{name}/sweep [post]
func (h *Handler) SweepSession(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Sweep(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
