package domain

import (
	"errors"
	"fmt"
)

// Error categories. Concrete errors wrap one of them so callers can classify with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrStale            = errors.New("stale")
	ErrInvalid          = errors.New("invalid")
	ErrTransportFailure = errors.New("transport failure")
)

var (
	ErrRoomNotFound        = fmt.Errorf("room %w", ErrNotFound)
	ErrMemberNotFound      = fmt.Errorf("member %w", ErrNotFound)
	ErrArchiveNotFound     = fmt.Errorf("archive %w", ErrNotFound)
	ErrPermissionDenied    = fmt.Errorf("permission denied: %w", ErrForbidden)
	ErrCodeExhausted       = fmt.Errorf("join code space exhausted: %w", ErrConflict)
	ErrMembersLimitReached = fmt.Errorf("members limit reached: %w", ErrConflict)
	ErrMemberAlreadyExists = fmt.Errorf("member already exists: %w", ErrConflict)
	ErrStaleEvent          = fmt.Errorf("event is %w", ErrStale)
	ErrOutOfOrder          = fmt.Errorf("log entry out of order: %w", ErrStale)
	ErrInvalidEvent        = fmt.Errorf("%w event", ErrInvalid)
	ErrEmptyMessage        = fmt.Errorf("%w: message is empty", ErrInvalidEvent)
	ErrMessageTooLong      = fmt.Errorf("%w: message is too long", ErrInvalidEvent)
	ErrInvalidMode         = fmt.Errorf("%w mode", ErrInvalid)
	ErrInvalidRole         = fmt.Errorf("%w role", ErrInvalid)
	ErrConnectionLost      = fmt.Errorf("connection lost: %w", ErrTransportFailure)
)
