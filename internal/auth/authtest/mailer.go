// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package authtest

import (
	"context"
	"strconv"
	"sync"

	"github.com/codevault/codevault/internal/auth"
)

// RecordingMailer records every message it is asked to send. Setting Err
// makes every send fail.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []auth.Message
	err      error
}

var _ auth.Mailer = (*RecordingMailer)(nil)

// NewRecordingMailer creates a mailer that accepts everything.
func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

// NewFailingMailer creates a mailer whose sends fail with err.
func NewFailingMailer(err error) *RecordingMailer {
	return &RecordingMailer{err: err}
}

// Send implements auth.Mailer.
func (m *RecordingMailer) Send(_ context.Context, msg auth.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}
	m.messages = append(m.messages, msg)
	return "msg-" + strconv.Itoa(len(m.messages)), nil
}

// SetErr changes the failure mode for later sends.
func (m *RecordingMailer) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Messages returns a copy of the sent messages.
func (m *RecordingMailer) Messages() []auth.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.Message(nil), m.messages...)
}

// Last returns the most recent message, or false if none was sent.
func (m *RecordingMailer) Last() (auth.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return auth.Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}
