package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/i18n"
)

// Response is the envelope every pharmacy endpoint answers with
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody carries the AppError code, its message in the caller's locale
// and per-field validation details.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta describes one page of a listing
type Meta struct {
	Page       int   `json:"page,omitempty"`
	PerPage    int   `json:"per_page,omitempty"`
	Total      int64 `json:"total,omitempty"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// PageMeta builds listing metadata from an offset/limit window.
func PageMeta(offset, limit, total int) *Meta {
	if limit <= 0 {
		return &Meta{Total: int64(total)}
	}
	return &Meta{
		Page:       offset/limit + 1,
		PerPage:    limit,
		Total:      int64(total),
		TotalPages: (total + limit - 1) / limit,
	}
}

func write(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// JSON sends data in the success envelope
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	write(w, statusCode, Response{Success: statusCode >= 200 && statusCode < 300, Data: data})
}

// JSONWithMeta sends one page of a listing
func JSONWithMeta(w http.ResponseWriter, statusCode int, data interface{}, meta *Meta) {
	write(w, statusCode, Response{Success: statusCode >= 200 && statusCode < 300, Data: data, Meta: meta})
}

// Created sends a 201 with the created resource
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Error sends an error without a request locale. Used where no request
// context is trustworthy, e.g. after a recovered panic.
func Error(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		appErr = errors.Internal("an unexpected error occurred")
	}
	write(w, appErr.StatusCode, Response{Error: &ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

// ErrorLocalized sends err with its message in the request's language.
// Anything that is not an AppError becomes INTERNAL_ERROR.
func ErrorLocalized(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		write(w, http.StatusInternalServerError, Response{Error: &ErrorBody{
			Code:    "INTERNAL_ERROR",
			Message: i18n.LocalizerFromContext(r.Context()).T("errors.internal"),
		}})
		return
	}
	write(w, appErr.StatusCode, Response{Error: &ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Localize(r.Context()),
		Details: appErr.Details,
	}})
}

// Bind decodes the JSON body into v and runs its validate tags.
func Bind(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalidJSON()
	}
	return Validate(v)
}

// BindOptional is Bind for endpoints whose body may be omitted.
func BindOptional(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return Validate(v)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return invalidJSON()
	}
	return Validate(v)
}

func invalidJSON() error {
	appErr := errors.InvalidInput("invalid JSON body")
	appErr.MessageKey = "errors.invalid_json"
	return appErr
}
