// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/samber/oops"
)

// DefaultBodyLimit caps JSON request bodies at 16 KiB.
const DefaultBodyLimit int64 = 16 << 10

// errEmptyBody is the cause of the error decodeJSON returns for a request
// without a body.
var errEmptyBody = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a single JSON object of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return oops.Code(CodePayloadTooLarge).
				With("limit", limit).
				Errorf("request body must not exceed %d bytes", limit)
		case errors.Is(err, io.EOF):
			return oops.Code(CodeBadRequest).Wrap(errEmptyBody)
		default:
			return errBadRequest("request body is not valid JSON")
		}
	}
	if dec.More() {
		return errBadRequest("request body must contain a single JSON object")
	}
	return nil
}
