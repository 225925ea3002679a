// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes      = 32               // 32 bytes = 64 hex chars
	DefaultResetTokenTTL = 15 * time.Minute // lifetime of an emailed reset link
)

// PendingReset is an outstanding password reset request. Only the digest of
// the emailed token is ever stored.
type PendingReset struct {
	Digest    string
	ExpiresAt time.Time
}

// NewPendingReset validates and builds a PendingReset.
func NewPendingReset(digest string, expiresAt time.Time) (*PendingReset, error) {
	if len(digest) != sha256.Size*2 {
		return nil, oops.Code("RESET_INVALID_DIGEST").
			With("length", len(digest)).
			Errorf("reset digest must be a hex-encoded SHA-256 sum")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("reset expiry is required")
	}
	return &PendingReset{Digest: digest, ExpiresAt: expiresAt.UTC()}, nil
}

// IsExpiredAt reports whether the reset can no longer be redeemed at t. A
// reset is valid only while t is strictly before its expiry.
func (r *PendingReset) IsExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// GenerateResetToken creates a secure random token and its digest.
// Returns (plaintext_token, sha256_digest, error).
// The plaintext token is emailed to the user; the digest is persisted.
func GenerateResetToken() (token, digest string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	digest = ResetTokenDigest(token)

	return token, digest, nil
}

// ResetTokenDigest computes the hex-encoded SHA-256 digest of a token.
func ResetTokenDigest(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks if the plaintext token matches the stored digest.
// Uses constant-time comparison to prevent timing attacks.
func VerifyResetToken(token, digest string) bool {
	if token == "" || digest == "" {
		return false
	}
	computed := ResetTokenDigest(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
