package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrNetwork marks failures where no usable response came back: transport errors,
// timeouts and undecodable bodies.
var ErrNetwork = errors.New("network error")

// ErrUnauthenticated is returned before any request is made when there is no
// credential to send.
var ErrUnauthenticated = errors.New("no credential")

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

// newApiError builds the error for a non-2xx response. The server's message is
// preferred over the status text.
func newApiError(status int, message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(status))
	}
	return &ApiError{StatusCode: status, Message: message}
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

// IsUnauthorized reports whether err is a 401 from the server, meaning the
// credential was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *ApiError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
