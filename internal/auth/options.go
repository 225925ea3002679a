// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"context"
	"log/slog"
	"time"
)

type serviceOptions struct {
	logger   *slog.Logger
	now      func() time.Time
	notifier *Notifier
}

// Option configures the services in this package.
type Option func(*serviceOptions)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// WithNotifier enables best-effort notification emails.
func WithNotifier(n *Notifier) Option {
	return func(o *serviceOptions) { o.notifier = n }
}

func applyOptions(opts []Option) serviceOptions {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o serviceOptions) notify(ctx context.Context, kind string, msg Message) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, kind, msg)
}
