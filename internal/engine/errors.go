package engine

import "errors"

// Sentinel error kinds. Callers compare with errors.Is; operations wrap these
// with fmt.Errorf("...: %w", ...) to attach context.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrServerMisconfigured = errors.New("server misconfigured: no auth secret configured")
	ErrNotFound           = errors.New("not found")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrEmptyGroup         = errors.New("group must contain at least one job")
	ErrNoEligibleMessage  = errors.New("no eligible message for chat job trigger")
	ErrChainCorrupt       = errors.New("group chain corrupt: cycle or dangling pointer")
)
