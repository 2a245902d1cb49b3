package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/starford/growthlab/internal/apperr"
	"github.com/starford/growthlab/internal/cardservice"
	"github.com/starford/growthlab/internal/upload"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the image itself.
const multipartOverhead = 1 << 20

// UploadHandler accepts image uploads.
type UploadHandler struct {
	svc *cardservice.Service
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(svc *cardservice.Service) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// UploadImage handles POST /api/upload-image (multipart/form-data, field
// "image", optional field "sessionId").
//
//	@Summary		Upload an image and store it as webp
//	@Tags			media
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image		formData	file	true	"Image file"
//	@Param			sessionId	formData	string	false	"Session the image belongs to"
//	@Success		200			{object}	UploadImageResponse
//	@Failure		400			{object}	errResponse
//	@Failure		413			{object}	errResponse
//	@Failure		500			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/upload-image [post]
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeJSON(w, http.StatusBadRequest, errorBody("Content-Type must be multipart/form-data"))
		return
	}

	limit := h.svc.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, fmt.Errorf("%w: request exceeds %d bytes", apperr.ErrTooLarge, limit))
			return
		}
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid multipart form", Details: err.Error()})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'image' field in multipart form"))
		return
	}
	defer file.Close()

	if header.Size > limit {
		writeError(w, r, fmt.Errorf("%w: %d bytes exceeds limit of %d", apperr.ErrTooLarge, header.Size, limit))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read image"))
		return
	}

	res, err := h.svc.Upload(r.Context(), upload.Request{
		SessionID: r.FormValue("sessionId"),
		Filename:  header.Filename,
		Data:      data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UploadImageResponse{Success: true, Path: res.Path, Duplicate: res.Duplicate})
}
