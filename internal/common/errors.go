// Package common defines shared constants and sentinel errors used across
// the gophblog server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Credential and second-factor errors. These never reach the client
	// verbatim; the HTTP layer collapses them to a generic message.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenNotFound      = errors.New("token not found")
	ErrInvalidCode        = errors.New("invalid code")
	ErrInvalidToken       = errors.New("invalid token")

	// Media gateway errors.
	ErrAccessDenied       = errors.New("access denied")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTransformFailure   = errors.New("transform failure")

	// ErrUploadBody marks an upload whose request body could not be read,
	// e.g. it exceeded the size limit or the client went away.
	ErrUploadBody = errors.New("upload body unreadable")

	// ErrValidation marks malformed input, e.g. a missing filename.
	ErrValidation = errors.New("validation error")
)
