// Package apperr holds the error taxonomy shared by the core and the presentation layers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrAmbiguousPath = errors.New("unable to uniquely identify file")
	ErrSecurity      = errors.New("path escapes source root")
	ErrBinaryContent = errors.New("cannot edit binary files")
	ErrCorruptIndex  = errors.New("duplicate index records")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidInput  = errors.New("invalid input")
)

var taxonomy = []error{
	ErrNotFound, ErrConflict, ErrAlreadyExists, ErrAmbiguousPath, ErrSecurity,
	ErrBinaryContent, ErrCorruptIndex, ErrUnauthorized, ErrInvalidInput,
}

// Message returns the text of the first taxonomy error wrapped by err, which
// is safe to show a client. Anything else is reported as an internal error.
func Message(err error) string {
	for _, e := range taxonomy {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "internal error"
}

// HTTPStatus maps an error from the taxonomy onto a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAmbiguousPath):
		return http.StatusMultipleChoices
	case errors.Is(err, ErrSecurity):
		return http.StatusForbidden
	case errors.Is(err, ErrBinaryContent):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
