package wordpress

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("wordpress unauthorized")
	ErrNotFound     = errors.New("wordpress resource not found")
	ErrUnavailable  = errors.New("wordpress unavailable")
)

// StatusError is a non-2xx REST response. It matches ErrUnauthorized,
// ErrNotFound or ErrUnavailable through errors.Is depending on the status.
type StatusError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("wordpress %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
	case ErrUnavailable:
		return e.StatusCode >= 500
	}
	return false
}
