package api

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/npezzotti/chatsync/internal/engine"
	"github.com/npezzotti/chatsync/internal/rest"
)

// errorFor maps an engine error onto the response sent to the caller.
func errorFor(err error) *rest.ApiError {
	var apiErr *rest.ApiError
	switch {
	case errors.Is(err, engine.ErrUnauthenticated):
		return &rest.ApiError{StatusCode: http.StatusUnauthorized, Message: err.Error()}
	case errors.Is(err, engine.ErrEmptyMessage):
		return &rest.ApiError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, engine.ErrNotConnected), errors.Is(err, engine.ErrStopped):
		return &rest.ApiError{StatusCode: http.StatusServiceUnavailable, Message: err.Error()}
	case errors.Is(err, engine.ErrNoActiveConversation):
		return &rest.ApiError{StatusCode: http.StatusConflict, Message: err.Error()}
	case errors.As(err, &apiErr):
		return apiErr
	default:
		return rest.NewInternalServerError(err)
	}
}
