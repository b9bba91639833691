package errors

import (
	"errors"
	"fmt"
)

var (
	ErrCatalogUnavailable       = errors.New("field catalog unavailable")
	ErrDuplicateFieldDefinition = errors.New("duplicate field definition")
	ErrUnknownFormat            = errors.New("unknown document format")
	ErrTransformCompile         = errors.New("transform compile failed")
	ErrMalformedSourceDocument  = errors.New("malformed source document")
	ErrSinkUnavailable          = errors.New("search index unavailable")
	ErrStateUnavailable         = errors.New("sync state unavailable")
	ErrIndexExists              = errors.New("index already exists")
	ErrIndexMissing             = errors.New("index does not exist")
)

type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsFatal reports whether err must abort a sync run. Per-record failures and
// the informational index lifecycle outcomes are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrMalformedSourceDocument),
		errors.Is(err, ErrIndexExists),
		errors.Is(err, ErrIndexMissing):
		return false
	default:
		return true
	}
}
