package usecase

import "errors"

// Stable error kinds. Handlers map these onto HTTP status codes; services
// wrap them with context via fmt.Errorf("%w: ...").
var (
	ErrBadArgs           = errors.New("bad arguments")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("conflict")
	ErrBadState          = errors.New("operation not valid from current state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPastWeek          = errors.New("week is before the current week")
	ErrUpstream          = errors.New("upstream scoring feed failed")
	ErrUpstreamTimeout   = errors.New("upstream scoring feed timed out")
)
