// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codevault/codevault/internal/auth"
	"github.com/codevault/codevault/internal/logging"
	"github.com/codevault/codevault/internal/mail"
)

// accountCreateConfig holds the flags of "account create".
type accountCreateConfig struct {
	username string
	email    string
}

// NewAccountCmd creates the account subcommand.
func NewAccountCmd() *cobra.Command {
	return newAccountCmdWithDeps(nil)
}

func newAccountCmdWithDeps(deps *AccountDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	addDatabaseFlags(cmd.PersistentFlags())

	cfg := &accountCreateConfig{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long: `Create an account without going through the API. The password is
read from the terminal without echo, or from the first line of stdin when
stdin is not a terminal. No tokens are issued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAccountCreate(cmd.Context(), cmd, cfg, deps)
		},
	}
	create.Flags().StringVar(&cfg.username, "username", "", "username (required)")
	create.Flags().StringVar(&cfg.email, "email", "", "email address (required)")
	_ = create.MarkFlagRequired("username") //nolint:errcheck // flag defined above
	_ = create.MarkFlagRequired("email")    //nolint:errcheck // flag defined above
	cmd.AddCommand(create)

	return cmd
}

func runAccountCreate(ctx context.Context, cmd *cobra.Command, flags *accountCreateConfig, deps *AccountDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &AccountDeps{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.PasswordReader == nil {
		stdin := bufio.NewReader(os.Stdin)
		deps.PasswordReader = func(prompt string) (string, error) {
			return readPassword(os.Stdin, stdin, cmd.ErrOrStderr(), prompt)
		}
	}

	username := auth.NormalizeUsername(flags.username)
	email := auth.NormalizeEmail(flags.email)
	// Reject bad input before prompting for a password.
	if err := auth.ValidateUsername(username); err != nil {
		return err
	}
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	password, err := deps.PasswordReader("Password: ")
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_READ").Wrap(err)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	confirm, err := deps.PasswordReader("Confirm password: ")
	if err != nil {
		return oops.Code("ACCOUNT_PASSWORD_READ").Wrap(err)
	}
	if confirm != password {
		return oops.Code("ACCOUNT_PASSWORD_MISMATCH").Errorf("passwords do not match")
	}

	accountStore, err := deps.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		if closeErr := accountStore.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn("error closing database", "error", closeErr)
		}
	}()

	// Accounts created by an operator get no welcome email.
	svc, err := newServices(cfg.Auth, accountStore.Accounts(), mail.NewLogMailer(cfg.Mail.From, logger), logger)
	if err != nil {
		return err
	}
	session, err := svc.accounts.Register(ctx, auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return err
	}
	svc.notifier.Wait()

	cmd.Printf("Created account %s <%s> (id %s)\n", session.Profile.Username, session.Profile.Email, session.Profile.ID)
	return nil
}

// readPassword prompts on out and reads a password from in. A terminal is
// read without echo; anything else is read a line at a time through
// buffered.
func readPassword(in *os.File, buffered *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fd := int(in.Fd()) //nolint:gosec // file descriptors fit in int
	if term.IsTerminal(fd) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(buffered)
}

// readLine returns the next line without its terminator. A final line
// without a newline is returned as is.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
