package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/logging"
)

// Kind classifies a failure. Handlers translate kinds to HTTP responses through
// the statusTable below and nowhere else.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindDuplicateEmail
	KindInvalidCredentials
	KindUnauthenticated
	KindNotFound
	KindForbidden
	KindUnavailable
	KindTransient
)

// Error codes
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeTransient          = "TRANSIENT_ERROR"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

type mapping struct {
	status int
	code   string
	// message replaces the error message in the response when set.
	message string
}

// KindForbidden shares NotFound's response so that non-owners cannot learn
// whether a resource exists.
var statusTable = map[Kind]mapping{
	KindValidation:         {http.StatusBadRequest, ErrCodeInvalidInput, ""},
	KindDuplicateEmail:     {http.StatusBadRequest, ErrCodeDuplicateEmail, ""},
	KindInvalidCredentials: {http.StatusUnauthorized, ErrCodeInvalidCredentials, ""},
	KindUnauthenticated:    {http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized"},
	KindNotFound:           {http.StatusNotFound, ErrCodeNotFound, ""},
	KindForbidden:          {http.StatusNotFound, ErrCodeNotFound, "Resource not found"},
	KindUnavailable:        {http.StatusServiceUnavailable, ErrCodeServiceUnavailable, ""},
	KindTransient:          {http.StatusInternalServerError, ErrCodeTransient, "Temporary failure, please retry"},
	KindUnexpected:         {http.StatusInternalServerError, ErrCodeInternalError, "Internal server error"},
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	case KindTransient:
		return "transient"
	default:
		return "unexpected"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	if m, ok := statusTable[k]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Error is a typed domain failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind and message, so sentinel values
// declared with New can be compared with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error carrying the underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// KindOf reports the kind of err, defaulting to KindUnexpected for untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Storage wraps a storage-layer failure, classifying timeouts, cancellations and
// broken connections as transient.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return Wrap(KindTransient, op, err)
	}
	return Wrap(KindUnexpected, op, err)
}

// IsTransient reports whether err looks like a retryable infrastructure failure.
func IsTransient(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}

// APIError represents a standardized API error response
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError
func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// ToAPIError converts err into the status code and body sent to clients.
func ToAPIError(err error) (int, *APIError) {
	kind := KindOf(err)
	m, ok := statusTable[kind]
	if !ok {
		m = statusTable[KindUnexpected]
	}

	message := m.message
	if message == "" {
		var appErr *Error
		if stderrors.As(err, &appErr) {
			message = appErr.Message
		}
	}
	return m.status, NewAPIError(m.code, message)
}

// Respond writes err as a JSON error response. Server-side failures are logged
// with their full cause; clients only see the generic message.
func Respond(c *gin.Context, logger logging.Logger, err error) {
	status, apiErr := ToAPIError(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error(c.Request.Context(), "request failed",
			"kind", KindOf(err).String(),
			"path", c.FullPath(),
			"error", err.Error(),
		)
	}
	RespondWithError(c, status, apiErr)
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, statusCode int, err *APIError) {
	c.JSON(statusCode, err)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context) {
	status, apiErr := ToAPIError(New(KindUnauthenticated, "Unauthorized"))
	RespondWithError(c, status, apiErr)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "Invalid request"
	}
	RespondWithError(c, http.StatusBadRequest, NewAPIError(ErrCodeInvalidInput, message))
}
