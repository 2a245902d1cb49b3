package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/growthlab/internal/cardservice"
	"github.com/starford/growthlab/internal/gc"
	"github.com/starford/growthlab/internal/models"
)

// UpdateCardRequest is the request body for replacing one card.
type UpdateCardRequest struct {
	SessionFile    string   `json:"sessionFile" example:"session-01" validate:"required"`
	CardIndex      *int     `json:"cardIndex" example:"0" validate:"required"`
	Content        *string  `json:"content" example:"![diagram](media/session-01/20240101_000000.webp)" validate:"required"`
	UploadedImages []string `json:"uploadedImages,omitempty"`
}

// Validate implements validation.Validatable.
func (r *UpdateCardRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionFile, validation.Required),
		validation.Field(&r.CardIndex, validation.NotNil),
		validation.Field(&r.Content, validation.NotNil),
	)
}

// DeleteCardRequest is the request body for removing one card.
type DeleteCardRequest struct {
	SessionFile    string   `json:"sessionFile" example:"session-01" validate:"required"`
	CardIndex      *int     `json:"cardIndex" example:"2" validate:"required"`
	UploadedImages []string `json:"uploadedImages,omitempty"`
}

// Validate implements validation.Validatable.
func (r *DeleteCardRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionFile, validation.Required),
		validation.Field(&r.CardIndex, validation.NotNil),
	)
}

// CleanupImagesRequest lists uploads an abandoned edit never saved.
type CleanupImagesRequest struct {
	Images []string `json:"images" validate:"required"`
}

// Validate implements validation.Validatable.
func (r *CleanupImagesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Images, validation.NotNil),
	)
}

// UploadImageResponse is returned after a successful upload.
type UploadImageResponse struct {
	Success   bool   `json:"success" validate:"required"`
	Path      string `json:"path" example:"media/session-01/20240101_000000.webp" validate:"required"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// UpdateCardResponse reports a card update.
type UpdateCardResponse struct {
	Success bool `json:"success" validate:"required"`
	cardservice.UpdateResult
}

// DeleteCardResponse reports a card deletion.
type DeleteCardResponse struct {
	Success bool `json:"success" validate:"required"`
	cardservice.DeleteResult
}

// CleanupImagesResponse reports discarded uploads.
type CleanupImagesResponse struct {
	Success bool `json:"success" validate:"required"`
	Deleted int  `json:"deleted" example:"2"`
}

// SessionListResponse lists session names.
type SessionListResponse struct {
	Sessions []string `json:"sessions" validate:"required"`
}

// SessionResponse is one session split into cards.
type SessionResponse = models.Session

// SweepResponse reports a full-scan collection.
type SweepResponse = gc.SweepReport
