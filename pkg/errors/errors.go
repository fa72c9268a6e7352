package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/medflow/pharmacy-backend/pkg/i18n"
)

// Sentinel errors wrapped by every AppError so callers can branch with errors.Is.
var (
	ErrNotFound                  = errors.New("resource not found")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrInsufficientAuthorization = errors.New("insufficient authorization")
	ErrInvalidInput              = errors.New("invalid input")
	ErrConflict                  = errors.New("resource conflict")
	ErrInternal                  = errors.New("internal server error")
	ErrValidation                = errors.New("validation error")
	ErrInvalidOrderState         = errors.New("invalid order state")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrTokenExpired              = errors.New("token expired")
	ErrTokenInvalid              = errors.New("invalid token")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns the message in the locale carried by ctx.
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

// InsufficientAuthorization is returned when a principal lacks the
// permission an operation is gated on.
func InsufficientAuthorization(resource, action string) *AppError {
	return &AppError{
		Err:        ErrInsufficientAuthorization,
		Code:       "INSUFFICIENT_AUTHORIZATION",
		Message:    fmt.Sprintf("permission %s:%s required", resource, action),
		MessageKey: "errors.insufficient_authorization",
		Params:     map[string]string{"resource": resource, "action": action},
		StatusCode: http.StatusForbidden,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidInput,
		Code:       "INVALID_INPUT",
		Message:    message,
		MessageKey: "errors.invalid_input",
		Params:     map[string]string{"reason": message},
		StatusCode: http.StatusBadRequest,
	}
}

// InvalidOrderState is returned when an order is asked to do something its
// current status does not allow.
func InvalidOrderState(orderNumber, status, operation string) *AppError {
	return &AppError{
		Err:        ErrInvalidOrderState,
		Code:       "INVALID_ORDER_STATE",
		Message:    fmt.Sprintf("order %s in status %s cannot be %s", orderNumber, status, operation),
		MessageKey: "errors.invalid_order_state",
		Params:     map[string]string{"order": orderNumber, "status": status, "operation": operation},
		StatusCode: http.StatusConflict,
	}
}

// InsufficientStock is raised by ledger primitives only. Delivery treats it
// as a signal to move on to the next lot.
func InsufficientStock(lotID string, requested, available int) *AppError {
	return &AppError{
		Err:        ErrInsufficientStock,
		Code:       "INSUFFICIENT_STOCK",
		Message:    fmt.Sprintf("lot %s has %d available, %d requested", lotID, available, requested),
		MessageKey: "errors.insufficient_stock",
		Params: map[string]string{
			"lot":       lotID,
			"requested": strconv.Itoa(requested),
			"available": strconv.Itoa(available),
		},
		StatusCode: http.StatusConflict,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		MessageKey: "errors.token_expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		MessageKey: "errors.token_invalid",
		StatusCode: http.StatusUnauthorized,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
