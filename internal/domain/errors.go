package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrNotLoggedIn    = errors.New("login required")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnidentifiable = errors.New("review id could not be resolved")
	ErrEmptyContent   = errors.New("review text is empty")
	ErrReviewNotFound = errors.New("review not found")
	ErrViewNotFound   = errors.New("review view not found")
)

// APIError is an upstream failure other than the sentinel statuses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ae):
		return ae.Status
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	}
	return 0
}
