package hosting

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrInvalidToken is returned when the control plane explicitly rejects an access token.
var ErrInvalidToken = errors.New("access token is invalid")

// ErrorType represents different categories of errors
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork represents transport failures (DNS, refused, timeouts)
	ErrorTypeNetwork
	// ErrorTypeAuthentication represents 401/403 responses
	ErrorTypeAuthentication
	// ErrorTypeAPI represents other non-2xx responses
	ErrorTypeAPI
	// ErrorTypeValidation represents malformed requests or replies
	ErrorTypeValidation
)

// Error represents a structured error with type information
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

func newNetworkError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: message, Cause: cause}
}

func newValidationError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message, Cause: cause}
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	var hErr *Error
	return errors.As(err, &hErr) && hErr.IsType(ErrorTypeNetwork)
}

// IsAuthenticationError reports whether err came from a 401/403 response.
func IsAuthenticationError(err error) bool {
	var hErr *Error
	return errors.As(err, &hErr) && hErr.IsType(ErrorTypeAuthentication)
}

// WrapHTTPError turns a non-2xx response into an Error. The response body, if any,
// is folded into the message the way the control plane reports details.
func WrapHTTPError(resp *http.Response, message string) *Error {
	detail := resp.Status
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if text := strings.TrimSpace(string(body)); text != "" {
			detail = fmt.Sprintf("%s: %s", resp.Status, text)
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Type: ErrorTypeAuthentication, Message: fmt.Sprintf("%s: %s", message, detail), StatusCode: resp.StatusCode}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &Error{Type: ErrorTypeValidation, Message: fmt.Sprintf("%s: %s", message, detail), StatusCode: resp.StatusCode}
	default:
		return &Error{Type: ErrorTypeAPI, Message: fmt.Sprintf("%s: %s", message, detail), StatusCode: resp.StatusCode}
	}
}
