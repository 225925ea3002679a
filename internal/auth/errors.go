// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a uniqueness constraint
// rejects a write.
var ErrDuplicate = errors.New("duplicate")

// ErrTokenInvalid is the cause of every bearer token rejection.
var ErrTokenInvalid = errors.New("token invalid")

// Error codes that callers map onto their own transport. The web layer turns
// them into HTTP statuses.
const (
	CodeConflict           = "AUTH_CONFLICT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeTokenInvalid       = "AUTH_TOKEN_INVALID"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeMailUnavailable    = "MAIL_UNAVAILABLE"

	CodeInvalidUsername = "AUTH_INVALID_USERNAME"
	CodeInvalidEmail    = "AUTH_INVALID_EMAIL"
	CodeInvalidPassword = "AUTH_INVALID_PASSWORD"
	CodeEmptyPassword   = "AUTH_EMPTY_PASSWORD"
)

// IsValidationCode reports whether code describes malformed caller input.
func IsValidationCode(code string) bool {
	switch code {
	case CodeInvalidUsername, CodeInvalidEmail, CodeInvalidPassword, CodeEmptyPassword:
		return true
	default:
		return false
	}
}

// ErrorCode extracts the oops code carried by err, or "" when there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
}

func errUnauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Errorf("authentication required")
}

func errResetTokenInvalid() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("password reset token is invalid or has expired")
}
