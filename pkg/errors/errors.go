package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error
type Kind int

// Error kinds surfaced to callers of the booking core
const (
	KindNotFound Kind = iota + 1000
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindInternal
	KindSlotUnavailable
	KindServiceVendorMismatch
	KindVendorMismatch
	KindInvalidTransition
	KindHasActiveBookings
	KindTransactionAborted
	KindConflict
)

var kindNames = map[Kind]string{
	KindNotFound:              "not_found",
	KindBadRequest:            "bad_request",
	KindUnauthorized:          "unauthorized",
	KindForbidden:             "forbidden",
	KindInternal:              "internal",
	KindSlotUnavailable:       "slot_unavailable",
	KindServiceVendorMismatch: "service_vendor_mismatch",
	KindVendorMismatch:        "vendor_mismatch",
	KindInvalidTransition:     "invalid_transition",
	KindHasActiveBookings:     "has_active_bookings",
	KindTransactionAborted:    "transaction_aborted",
	KindConflict:              "conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithMessage returns a copy of e carrying message.
func (e *AppError) WithMessage(message string) *AppError {
	c := *e
	c.Message = message
	return &c
}

// Is matches any AppError of the same kind, so sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindSlotUnavailable, KindServiceVendorMismatch, KindVendorMismatch,
		KindInvalidTransition, KindHasActiveBookings, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks
var (
	ErrNotFound              = &AppError{Kind: KindNotFound}
	ErrBadRequest            = &AppError{Kind: KindBadRequest}
	ErrUnauthorized          = &AppError{Kind: KindUnauthorized}
	ErrForbidden             = &AppError{Kind: KindForbidden}
	ErrInternal              = &AppError{Kind: KindInternal}
	ErrSlotUnavailable       = &AppError{Kind: KindSlotUnavailable}
	ErrServiceVendorMismatch = &AppError{Kind: KindServiceVendorMismatch}
	ErrVendorMismatch        = &AppError{Kind: KindVendorMismatch}
	ErrInvalidTransition     = &AppError{Kind: KindInvalidTransition}
	ErrHasActiveBookings     = &AppError{Kind: KindHasActiveBookings}
	ErrTransactionAborted    = &AppError{Kind: KindTransactionAborted}
	ErrConflict              = &AppError{Kind: KindConflict}
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Kind:    KindBadRequest,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func SlotUnavailable(message string) *AppError {
	return &AppError{Kind: KindSlotUnavailable, Message: message}
}

func ServiceVendorMismatch(message string) *AppError {
	return &AppError{Kind: KindServiceVendorMismatch, Message: message}
}

func VendorMismatch(message string) *AppError {
	return &AppError{Kind: KindVendorMismatch, Message: message}
}

func InvalidTransition(message string) *AppError {
	return &AppError{Kind: KindInvalidTransition, Message: message}
}

func HasActiveBookings(message string) *AppError {
	return &AppError{Kind: KindHasActiveBookings, Message: message}
}

func TransactionAborted(err error) *AppError {
	return &AppError{
		Kind:    KindTransactionAborted,
		Message: "transaction aborted",
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
