// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/pkg/errutil"
)

// Transport-level error codes.
const (
	CodeBadRequest      = "HTTP_BAD_REQUEST"
	CodePayloadTooLarge = "HTTP_PAYLOAD_TOO_LARGE"
)

// internalErrorMessage replaces the message of every unmapped failure so
// store and driver details never reach the client.
const internalErrorMessage = "something went wrong"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func errBadRequest(format string, args ...any) error {
	return oops.Code(CodeBadRequest).Errorf(format, args...)
}

// StatusFor maps an error code to the HTTP status the API reports for it.
func StatusFor(code string) int {
	switch {
	case code == auth.CodeConflict:
		return http.StatusConflict
	case code == auth.CodeInvalidCredentials, code == auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	case code == auth.CodeNotFound:
		return http.StatusNotFound
	case code == auth.CodeResetTokenInvalid, code == CodeBadRequest, auth.IsValidationCode(code):
		return http.StatusBadRequest
	case code == CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case code == auth.CodeMailUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an errorResponse. Unmapped errors are logged
// with their full context and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(auth.ErrorCode(err))

	message := internalErrorMessage
	if status == http.StatusInternalServerError {
		errutil.LogError(logger, "request failed", oops.
			With("method", r.Method).
			With("path", r.URL.Path).
			Wrap(err))
	} else {
		message = err.Error()
	}

	writeJSON(w, status, errorResponse{Success: false, Message: message})
}
