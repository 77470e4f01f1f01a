package errors

import (
	"errors"
)

// Common error types
var (
	ErrValidation              = errors.New("validation failed")
	ErrUnknownSetting          = errors.New("unknown setting")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrNotFound                = errors.New("not found")
	ErrNoReplyTarget           = errors.New("no reply target")
	ErrAlreadyMuted            = errors.New("already muted")
	ErrUserLeftChat            = errors.New("user left chat")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
