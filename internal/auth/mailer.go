// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/codevault/codevault/pkg/errutil"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers email. Send returns the provider's message identifier.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Notification kinds, used as log and metric labels.
const (
	NotifyWelcome         = "welcome"
	NotifyLogin           = "login"
	NotifyPasswordChanged = "password_changed"
)

// DefaultNotifyTimeout bounds a single background notification send.
const DefaultNotifyTimeout = 30 * time.Second

// Notifier sends best-effort notification emails in the background. Failures
// are logged and counted but never reach the caller.
type Notifier struct {
	mailer  Mailer
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier. A zero timeout disables the per-send bound.
func NewNotifier(mailer Mailer, logger *slog.Logger, timeout time.Duration) (*Notifier, error) {
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{mailer: mailer, logger: logger, timeout: timeout}, nil
}

// Notify queues msg for delivery and returns immediately. The send is
// detached from ctx cancellation so a finished request does not abort it.
func (n *Notifier) Notify(ctx context.Context, kind string, msg Message) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if n.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, n.timeout)
			defer cancel()
		}

		id, err := n.mailer.Send(ctx, msg)
		if err != nil {
			RecordNotificationFailure(kind)
			n.logger.WarnContext(ctx, "best-effort notification email failed",
				"kind", kind,
				"error", err.Error(),
			)
			return
		}
		n.logger.DebugContext(ctx, "notification email sent", "kind", kind, "message_id", id)
	}()
}

// Wait blocks until every queued notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// sendOrLog sends synchronously and logs a failure; used where the caller
// needs to know whether delivery was accepted.
func sendOrLog(ctx context.Context, logger *slog.Logger, mailer Mailer, msg Message) (string, error) {
	id, err := mailer.Send(ctx, msg)
	if err != nil {
		errutil.LogError(logger, "email delivery failed", err)
		return "", err
	}
	return id, nil
}
