// Package apperr defines the error taxonomy shared by the store, the upload
// pipeline and the transport layers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidIndex    = errors.New("invalid card index")
	ErrLastCard        = errors.New("cannot delete the only card")
	ErrInvalidName     = errors.New("invalid session name")
	ErrValidation      = errors.New("validation failed")
	ErrTooLarge        = errors.New("payload too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("empty file")
	ErrConversion      = errors.New("image conversion failed")
	ErrOutputMissing   = errors.New("converted image not found")
)

// Kind is the coarse class of an error as seen by a caller.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConversion Kind = "conversion"
	KindInternal   Kind = "internal"
)

// KindOf classifies err using sentinel matching only.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidIndex),
		errors.Is(err, ErrLastCard),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrTooLarge),
		errors.Is(err, ErrUnsupportedType),
		errors.Is(err, ErrEmptyFile):
		return KindValidation
	case errors.Is(err, ErrConversion), errors.Is(err, ErrOutputMissing):
		return KindConversion
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
