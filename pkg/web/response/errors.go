package response

import (
	"errors"
	"net/http"
)

// StatusCoder is implemented by errors that know their HTTP status
type StatusCoder interface {
	StatusCode() int
}

// ErrorBody is the error object inside an error response
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the JSON shape of every error response
type ErrorResponse struct {
	Error  ErrorBody `json:"error"`
	Status int       `json:"status"`
}

// HTTPError is an error with an HTTP status, code and optional details
type HTTPError struct {
	Status  int
	Message string
	Code    string
	Details map[string]any
	Err     error
}

// NewHTTPError creates an HTTP error with the code derived from status
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{
		Status:  status,
		Message: message,
		Code:    errorCodeFromStatus(status),
	}
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return e.Message
}

// Unwrap returns the cause, if any
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusCode implements StatusCoder
func (e *HTTPError) StatusCode() int {
	return e.Status
}

// WithCode sets a custom error code
func (e *HTTPError) WithCode(code string) *HTTPError {
	e.Code = code
	return e
}

// WithDetails adds details to the error
func (e *HTTPError) WithDetails(details map[string]any) *HTTPError {
	e.Details = details
	return e
}

// Wrap records the underlying cause
func (e *HTTPError) Wrap(err error) *HTTPError {
	e.Err = err
	return e
}

// RenderError writes err as a JSON error response. The status comes from
// the first StatusCoder in the chain and defaults to 500. Messages of
// server errors that are not HTTPErrors are not exposed.
func RenderError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}

	body := ErrorBody{Code: errorCodeFromStatus(status)}
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		body.Message = httpErr.Message
		body.Details = httpErr.Details
		if httpErr.Code != "" {
			body.Code = httpErr.Code
		}
	case err == nil || status >= http.StatusInternalServerError:
		body.Message = http.StatusText(status)
	default:
		body.Message = err.Error()
	}

	JSON(w, status, &ErrorResponse{Error: body, Status: status})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, NewHTTPError(http.StatusBadRequest, message))
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	RenderError(w, NewHTTPError(http.StatusUnauthorized, message))
}

// RenderForbidden renders a 403 Forbidden error
func RenderForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Access denied"
	}
	RenderError(w, NewHTTPError(http.StatusForbidden, message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, NewHTTPError(http.StatusNotFound, message))
}

// RenderInternalError renders a 500 without exposing err
func RenderInternalError(w http.ResponseWriter, err error) {
	RenderError(w, NewHTTPError(http.StatusInternalServerError, "Internal server error").Wrap(err))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusNotImplemented:
		return "not_implemented"
	case http.StatusBadGateway:
		return "bad_gateway"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusGatewayTimeout:
		return "gateway_timeout"
	default:
		return "error"
	}
}
