package service

import (
	"Cabinet/internal/storage"
	"errors"
	"fmt"
)

// Rejections surfaced to the API boundary. Handlers map each to a stable code.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrUserExists      = errors.New("username already exists")
	ErrBadCredentials  = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrUploadTooLarge  = errors.New("upload exceeds size limit")
	ErrFolderNotFound  = errors.New("folder not found")
	ErrFolderNotEmpty  = errors.New("folder not empty")
	ErrFolderCycle     = errors.New("folder cannot be moved into its own subtree")
	ErrFolderTooDeep   = errors.New("folder chain exceeds maximum depth")
	ErrDerivativeEmpty = errors.New("no derivative for file")

	ErrShareNotFound         = errors.New("share not found")
	ErrShareExpired          = errors.New("share expired")
	ErrShareExhausted        = errors.New("share download limit reached")
	ErrSharePasswordRequired = fmt.Errorf("%w: share password required", ErrUnauthorized)
	ErrSharePasswordInvalid  = fmt.Errorf("%w: share password invalid", ErrUnauthorized)

	ErrBackupBusy        = errors.New("backup already running")
	ErrBackupUnavailable = errors.New("backup target not configured")
)

// ErrStorageIO marks filesystem failures; it is the same value the storage layer wraps.
var ErrStorageIO = storage.ErrIO
