// Package apierr defines the gateway's error taxonomy (spec.md §7):
// a stable machine-readable code, a user-facing message, structured
// details, and the HTTP status the REST layer should surface it as.
//
// Grounded on src/infrastructure/datafacade/interfaces/facade.go's
// sentinel error block (ErrVenueNotSupported, ErrCircuitBreakerOpen,
// ...), generalized into a structured type that carries its own HTTP
// status rather than requiring callers to re-derive one from a
// sentinel via errors.Is.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeVenueConnection    Code = "VENUE_CONNECTION_ERROR"
	CodeAuthentication     Code = "AUTHENTICATION_ERROR"
	CodeOrderValidation    Code = "ORDER_VALIDATION_ERROR"
	CodeInsufficientFunds  Code = "INSUFFICIENT_BALANCE_ERROR"
	CodeOrderNotFound      Code = "ORDER_NOT_FOUND_ERROR"
	CodePositionNotFound   Code = "POSITION_NOT_FOUND_ERROR"
	CodeMarketData         Code = "MARKET_DATA_ERROR"
	CodeWebSocket          Code = "WEBSOCKET_ERROR"
	CodeRateLimit          Code = "RATE_LIMIT_ERROR"
	CodeCircuitBreaker     Code = "CIRCUIT_BREAKER_ERROR"
	CodeConfiguration      Code = "CONFIGURATION_ERROR"
	CodeShuttingDown       Code = "SHUTTING_DOWN_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// httpStatus maps each taxonomy code to the HTTP status spec.md §7
// prescribes.
var httpStatus = map[Code]int{
	CodeVenueConnection:   http.StatusServiceUnavailable,
	CodeAuthentication:    http.StatusUnauthorized,
	CodeOrderValidation:   http.StatusBadRequest,
	CodeInsufficientFunds: http.StatusBadRequest,
	CodeOrderNotFound:     http.StatusNotFound,
	CodePositionNotFound:  http.StatusNotFound,
	CodeMarketData:        http.StatusNotFound,
	CodeWebSocket:         http.StatusInternalServerError,
	CodeRateLimit:         http.StatusTooManyRequests,
	CodeCircuitBreaker:    http.StatusServiceUnavailable,
	CodeConfiguration:     http.StatusInternalServerError,
	CodeShuttingDown:      http.StatusServiceUnavailable,
	CodeInternal:          http.StatusInternalServerError,
}

// Error is the structured error every component returns for a
// classifiable failure.
type Error struct {
	Code       Code
	Message    string
	Details    map[string]interface{}
	RetryAfter int // seconds; populated for CodeRateLimit
	cause      error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code the REST layer should respond
// with for this error.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func VenueConnection(venue, msg string) *Error {
	return New(CodeVenueConnection, msg).WithDetails(map[string]interface{}{"venue": venue})
}

func Authentication(venue, msg string) *Error {
	return New(CodeAuthentication, msg).WithDetails(map[string]interface{}{"venue": venue})
}

func OrderValidation(msg string) *Error { return New(CodeOrderValidation, msg) }

func InsufficientBalance(msg string) *Error { return New(CodeInsufficientFunds, msg) }

func OrderNotFound(venueID string) *Error {
	return New(CodeOrderNotFound, "order not found").WithDetails(map[string]interface{}{"venue_id": venueID})
}

func PositionNotFound(symbol string) *Error {
	return New(CodePositionNotFound, "position not found").WithDetails(map[string]interface{}{"symbol": symbol})
}

func CircuitBreakerOpen(venue string) *Error {
	return New(CodeCircuitBreaker, "circuit breaker is open").WithDetails(map[string]interface{}{"venue": venue})
}

func RateLimited(venue string, retryAfterSeconds int) *Error {
	e := New(CodeRateLimit, "rate limit exceeded").WithDetails(map[string]interface{}{"venue": venue})
	e.RetryAfter = retryAfterSeconds
	return e
}

func Configuration(msg string) *Error { return New(CodeConfiguration, msg) }

// AsError unwraps err into *Error if possible, falling back to a
// generic internal error so callers always have a taxonomy code to
// project.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(CodeInternal, "internal error", err)
}
