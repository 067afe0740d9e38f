package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("cash session already open")
	ErrNotOpen       = errors.New("no open cash session")
	ErrAuditRequired = errors.New("validated Z audit required")
	ErrForbidden     = errors.New("not allowed for this operator")
)

// ErrorCode returns a stable machine-readable code for the error kinds the
// API exposes. Unknown errors map to "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotOpen):
		return "not_open"
	case errors.Is(err, ErrAuditRequired):
		return "audit_required"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
