// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for auth operation metrics.
const (
	StatusSuccess = "success"
	StatusFailure = "failure" // rejected by policy: bad credentials, invalid token
	StatusError   = "error"   // infrastructure failure
)

// Operation labels.
const (
	OpRegister       = "register"
	OpLogin          = "login"
	OpLogout         = "logout"
	OpRefresh        = "refresh"
	OpProfile        = "profile"
	OpAuthenticate   = "authenticate"
	OpForgotPassword = "forgot_password"
	OpValidateReset  = "validate_reset_token"
	OpResetPassword  = "reset_password"
)

// Operations counts auth operations by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Operations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codevault_auth_operations_total",
		Help: "Total number of account operations",
	},
	[]string{"operation", "status"},
)

// NotificationFailures counts background notification emails that failed.
// Use RegisterMetrics to register this with a Prometheus registry.
var NotificationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "codevault_auth_notification_failures_total",
		Help: "Total number of best-effort notification emails that failed",
	},
	[]string{"kind"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(NotificationFailures)
}

// RecordOperation increments the operation counter.
func RecordOperation(operation, status string) {
	Operations.WithLabelValues(operation, status).Inc()
}

// RecordNotificationFailure increments the notification failure counter.
func RecordNotificationFailure(kind string) {
	NotificationFailures.WithLabelValues(kind).Inc()
}
