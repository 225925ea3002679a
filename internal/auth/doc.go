// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package auth provides account registration, credential verification,
// bearer token issuance and the password reset flow for CodeVault.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewAccount - creates an Account with validated username, email and hash
//   - NewPendingReset - creates a PendingReset with a validated digest and expiry
//   - NewTokenCodec / NewTokenIssuer - signing configuration for access and refresh tokens
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - register, login, logout, refresh and profile lookup
//   - PasswordResetService - forgot-password email and token redemption
//   - SessionGuard - resolves the account behind an access token
//
// Services are created with New* constructors that validate dependencies.
// Errors carry samber/oops codes (Code* constants) that transports map to
// their own status values.
package auth
