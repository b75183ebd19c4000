package domain

import "errors"

var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrPreviewNotFound      = errors.New("preview not found")
	ErrPreviewAccessDenied  = errors.New("preview access denied")
	ErrPreviewInvalidState  = errors.New("preview invalid state")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrExecutionFailed      = errors.New("execution failed")
	ErrRevertFailed         = errors.New("revert failed")
	ErrInvalidAction        = errors.New("invalid action")
	ErrStatusConflict       = errors.New("status conflict")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInternal             = errors.New("internal error")
)
