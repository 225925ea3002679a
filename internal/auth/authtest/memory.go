// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

// Package authtest provides in-memory fakes of the auth package's ports for
// tests in other packages.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codevault/codevault/internal/auth"
)

// MemoryAccounts is a thread-safe AccountRepository that enforces the same
// case-insensitive uniqueness as the real stores.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
}

var _ auth.AccountRepository = (*MemoryAccounts)(nil)

// NewMemoryAccounts creates an empty store.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[ulid.ULID]*auth.Account)}
}

// Create implements auth.AccountRepository.
func (m *MemoryAccounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if strings.EqualFold(a.Username, account.Username) || strings.EqualFold(a.Email, account.Email) {
			return oops.Code("ACCOUNT_DUPLICATE").Wrap(auth.ErrDuplicate)
		}
	}
	m.accounts[account.ID] = clone(account)
	return nil
}

// GetByID implements auth.AccountRepository.
func (m *MemoryAccounts) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, notFound()
	}
	return clone(a), nil
}

// GetByEmail implements auth.AccountRepository.
func (m *MemoryAccounts) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	return m.find(func(a *auth.Account) bool { return strings.EqualFold(a.Email, email) })
}

// GetByUsername implements auth.AccountRepository.
func (m *MemoryAccounts) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	return m.find(func(a *auth.Account) bool { return strings.EqualFold(a.Username, username) })
}

// ExistsByUsernameOrEmail implements auth.AccountRepository.
func (m *MemoryAccounts) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	_, err := m.find(func(a *auth.Account) bool {
		return strings.EqualFold(a.Username, username) || strings.EqualFold(a.Email, email)
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// GetByResetDigest implements auth.AccountRepository.
func (m *MemoryAccounts) GetByResetDigest(_ context.Context, digest string, now time.Time) (*auth.Account, error) {
	return m.find(func(a *auth.Account) bool {
		return a.Reset != nil && a.Reset.Digest == digest && !a.Reset.IsExpiredAt(now)
	})
}

// UpdatePassword implements auth.AccountRepository.
func (m *MemoryAccounts) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	return m.update(id, func(a *auth.Account) { a.PasswordHash = passwordHash })
}

// SetPendingReset implements auth.AccountRepository.
func (m *MemoryAccounts) SetPendingReset(_ context.Context, id ulid.ULID, reset auth.PendingReset) error {
	return m.update(id, func(a *auth.Account) { a.Reset = &reset })
}

// ClearPendingReset implements auth.AccountRepository.
func (m *MemoryAccounts) ClearPendingReset(_ context.Context, id ulid.ULID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[id]; ok && a.Reset != nil && a.Reset.Digest == digest {
		a.Reset = nil
	}
	return nil
}

// CompleteReset implements auth.AccountRepository.
func (m *MemoryAccounts) CompleteReset(_ context.Context, digest, passwordHash string, now time.Time) (ulid.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Reset != nil && a.Reset.Digest == digest && !a.Reset.IsExpiredAt(now) {
			a.PasswordHash = passwordHash
			a.Reset = nil
			a.UpdatedAt = now.UTC()
			return a.ID, nil
		}
	}
	return ulid.ULID{}, notFound()
}

// Delete removes an account. Not part of the repository contract; used to
// simulate deletion after token issuance.
func (m *MemoryAccounts) Delete(id ulid.ULID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
}

// All returns a snapshot of every stored account.
func (m *MemoryAccounts) All() []*auth.Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*auth.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, clone(a))
	}
	return out
}

func (m *MemoryAccounts) find(match func(*auth.Account) bool) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if match(a) {
			return clone(a), nil
		}
	}
	return nil, notFound()
}

func (m *MemoryAccounts) update(id ulid.ULID, fn func(*auth.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return notFound()
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(a *auth.Account) *auth.Account {
	c := *a
	if a.Reset != nil {
		r := *a.Reset
		c.Reset = &r
	}
	return &c
}

func notFound() error {
	return oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
}
