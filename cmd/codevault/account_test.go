// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/config"
	"github.com/codevault/codevault/pkg/errutil"
)

// scriptedPasswords answers prompts in order.
func scriptedPasswords(answers ...string) func(string) (string, error) {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("unexpected prompt")
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
}

func runAccountCmd(t *testing.T, store *fakeStore, passwords func(string) (string, error), args ...string) (string, error) {
	t.Helper()
	cmd := newAccountCmdWithDeps(&AccountDeps{
		StoreFactory:   store.factory(),
		PasswordReader: passwords,
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAccountCreate(t *testing.T) {
	setTestEnv(t)
	store := newFakeStore()

	out, err := runAccountCmd(t, store, scriptedPasswords("secret123", "secret123"),
		"create", "--username", " ada ", "--email", "Ada@Example.com")

	require.NoError(t, err)
	assert.Contains(t, out, "Created account ada <ada@example.com>")
	assert.NotContains(t, out, "accessToken")

	accounts := store.accounts.All()
	require.Len(t, accounts, 1)
	assert.Equal(t, "ada", accounts[0].Username)
	assert.NotEqual(t, "secret123", accounts[0].PasswordHash)
	assert.True(t, store.closed.Load())
}

func TestAccountCreate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		passwords []string
		wantCode  string
	}{
		{
			name:      "invalid username",
			args:      []string{"create", "--username", "1ada", "--email", "ada@example.com"},
			passwords: nil,
			wantCode:  auth.CodeInvalidUsername,
		},
		{
			name:     "invalid email",
			args:     []string{"create", "--username", "ada", "--email", "nope"},
			wantCode: auth.CodeInvalidEmail,
		},
		{
			name:      "weak password",
			args:      []string{"create", "--username", "ada", "--email", "ada@example.com"},
			passwords: []string{"x"},
			wantCode:  auth.CodeInvalidPassword,
		},
		{
			name:      "mismatched confirmation",
			args:      []string{"create", "--username", "ada", "--email", "ada@example.com"},
			passwords: []string{"secret123", "secret124"},
			wantCode:  "ACCOUNT_PASSWORD_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestEnv(t)
			store := newFakeStore()

			_, err := runAccountCmd(t, store, scriptedPasswords(tt.passwords...), tt.args...)

			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.Empty(t, store.accounts.All())
		})
	}
}

func TestAccountCreate_Duplicate(t *testing.T) {
	setTestEnv(t)
	store := newFakeStore()
	args := []string{"create", "--username", "ada", "--email", "ada@example.com"}

	_, err := runAccountCmd(t, store, scriptedPasswords("secret123", "secret123"), args...)
	require.NoError(t, err)
	_, err = runAccountCmd(t, store, scriptedPasswords("secret123", "secret123"), args...)

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeConflict)
}

func TestAccountCreate_RequiresFlags(t *testing.T) {
	setTestEnv(t)

	_, err := runAccountCmd(t, newFakeStore(), scriptedPasswords(), "create", "--username", "ada")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestAccountCreate_StoreError(t *testing.T) {
	setTestEnv(t)
	cmd := newAccountCmdWithDeps(&AccountDeps{
		StoreFactory: func(context.Context, *config.Config, *slog.Logger) (AccountStore, error) {
			return nil, errors.New("connection refused")
		},
		PasswordReader: scriptedPasswords("secret123", "secret123"),
	})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"create", "--username", "ada", "--email", "ada@example.com"})

	err := cmd.Execute()

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("first\r\nsecond\nlast"))

	for _, want := range []string{"first", "second", "last"} {
		got, err := readLine(r)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := readLine(r)
	assert.Error(t, err)
}
