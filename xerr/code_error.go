// Package xerr - Coded errors that map onto HTTP responses.
package xerr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// CodeError is an error carrying the HTTP status to answer with and a message that is
// safe to show to a client.
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *CodeError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// New creates a CodeError.
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Newf creates a CodeError with a formatted message.
func Newf(code int, format string, args ...interface{}) *CodeError {
	return &CodeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether target is a CodeError with the same code and message, so that
// errors.Is works against the predefined values below.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// Client reports whether the error is the caller's fault.
func (e *CodeError) Client() bool {
	return e.Code >= 400 && e.Code < 500
}

// Predefined errors.
var (
	ErrServerError        = New(http.StatusInternalServerError, "Internal server error")
	ErrModelNotLoaded     = New(http.StatusServiceUnavailable, "Model is not loaded")
	ErrMissingFile        = New(http.StatusBadRequest, "No file provided. Use 'file' as the form field name")
	ErrInvalidContentType = New(http.StatusBadRequest, "File must be an image (jpg, png, jpeg)")
	ErrInvalidImage       = New(http.StatusBadRequest, "Uploaded file could not be decoded as an image")
	ErrImageTooLarge      = New(http.StatusRequestEntityTooLarge, "Image dimensions exceed the maximum pixel count")
	ErrInferenceFailure   = New(http.StatusInternalServerError, "Prediction failed")
	ErrReloadFailure      = New(http.StatusInternalServerError, "Model reload failed")
	ErrMetricsDisabled    = New(http.StatusNotFound, "Metrics are disabled")
)

// FileTooLarge builds the error returned when an upload exceeds limit bytes.
func FileTooLarge(limit int64) *CodeError {
	return Newf(http.StatusRequestEntityTooLarge, "File exceeds the maximum upload size of %d MB", limit>>20)
}

// TooManyFiles builds the error returned when a batch holds more than max files.
func TooManyFiles(max int) *CodeError {
	return Newf(http.StatusBadRequest, "Maximum %d images allowed per batch", max)
}

// From extracts the CodeError carried by err, falling back to ErrServerError.
func From(err error) *CodeError {
	if err == nil {
		return nil
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrServerError
}
