package apiview

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of an APIViewError. Values are stable and part of
// the wire contract.
type Code int

const (
	// Raised by the request envelope validator.
	InvalidRequestData Code = 1
	InvalidEntity      Code = 2
	InvalidAction      Code = 3
	InvalidMethod      Code = 4
	InvalidHeaders     Code = 5
	InvalidCookies     Code = 6

	// Raised by the fetcher.
	APIViewNotFound           Code = 7
	InvalidAPIView            Code = 8
	InvalidAPIViewInheritance Code = 9
	ProcessMethodNotFound     Code = 10
	APINotFound               Code = 11
	InvalidAPI                Code = 12

	// Raised by the dispatcher while running a handler.
	ValidationFailed Code = 13
	ProcessFailed    Code = 14
)

var codeNames = map[Code]string{
	InvalidRequestData:        "INVALID_REQUEST_DATA",
	InvalidEntity:             "INVALID_ENTITY",
	InvalidAction:             "INVALID_ACTION",
	InvalidMethod:             "INVALID_METHOD",
	InvalidHeaders:            "INVALID_HEADERS",
	InvalidCookies:            "INVALID_COOKIES",
	APIViewNotFound:           "API_VIEW_NOT_FOUND",
	InvalidAPIView:            "INVALID_API_VIEW",
	InvalidAPIViewInheritance: "INVALID_API_VIEW_INHERITANCE",
	ProcessMethodNotFound:     "PROCESS_METHOD_NOT_FOUND",
	APINotFound:               "API_NOT_FOUND",
	InvalidAPI:                "INVALID_API",
	ValidationFailed:          "VALIDATION_FAILED",
	ProcessFailed:             "PROCESS_FAILED",
}

// String returns the symbolic name of the code, e.g. "INVALID_ENTITY".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}

// HTTPStatus returns the status a dispatch reports for this kind. Request
// envelope kinds never reach a dispatch response; they map to 400 for
// transports that need to answer anyway.
func (c Code) HTTPStatus() int {
	switch c {
	case ValidationFailed, InvalidRequestData, InvalidEntity, InvalidAction, InvalidMethod, InvalidHeaders, InvalidCookies:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// APIViewError is a construction or resolution error with a stable code.
type APIViewError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewError creates an APIViewError.
func NewError(code Code, format string, args ...interface{}) *APIViewError {
	return &APIViewError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *APIViewError) Error() string {
	return e.Message
}

// CodeOf extracts the Code of the first APIViewError in err's chain.
func CodeOf(err error) (Code, bool) {
	var apiErr *APIViewError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return 0, false
}

// HTTPError is returned by handlers to choose the response status and to
// attach response headers. Validate honours statuses in [400,500), Process
// honours statuses in [500,600); anything else falls back to the stage
// default.
type HTTPError struct {
	Status  int
	Message string
	Headers map[string]string
	Err     error
}

// NewHTTPError creates an HTTPError with the given status and message.
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// WithHeader adds a response header and returns the error.
func (e *HTTPError) WithHeader(name, value string) *HTTPError {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[name] = value
	return e
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
