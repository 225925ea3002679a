// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeVault Contributors

package auth

import (
	"fmt"
	"html"
	"time"
)

const productName = "CodeVault"

func welcomeMessage(a *Account) Message {
	name := html.EscapeString(a.Username)
	return Message{
		To:      a.Email,
		Subject: "Welcome to " + productName,
		Text: fmt.Sprintf("Hi %s,\n\nYour %s account has been created. You can now sign in and start saving snippets.\n",
			a.Username, productName),
		HTML: fmt.Sprintf("<p>Hi %s,</p><p>Your %s account has been created. You can now sign in and start saving snippets.</p>",
			name, productName),
	}
}

func loginMessage(a *Account, at time.Time) Message {
	when := at.UTC().Format(time.RFC1123)
	return Message{
		To:      a.Email,
		Subject: "New sign-in to your " + productName + " account",
		Text: fmt.Sprintf("Hi %s,\n\nYour account was signed in to at %s. If this wasn't you, reset your password now.\n",
			a.Username, when),
		HTML: fmt.Sprintf("<p>Hi %s,</p><p>Your account was signed in to at %s. If this wasn't you, reset your password now.</p>",
			html.EscapeString(a.Username), when),
	}
}

func resetMessage(a *Account, resetURL string, ttl time.Duration) Message {
	return Message{
		To:      a.Email,
		Subject: "Password Reset Link",
		Text: fmt.Sprintf("Reset your password using this link:\n\n%s\n\nThe link expires in %s. If you did not request a reset, ignore this email.\n",
			resetURL, ttl),
		HTML: fmt.Sprintf(`<p>Reset your password using this link:</p><p><a href="%s">%s</a></p><p>The link expires in %s. If you did not request a reset, ignore this email.</p>`,
			html.EscapeString(resetURL), html.EscapeString(resetURL), ttl),
	}
}

func passwordChangedMessage(a *Account, at time.Time) Message {
	when := at.UTC().Format(time.RFC1123)
	return Message{
		To:      a.Email,
		Subject: "Your " + productName + " password was changed",
		Text: fmt.Sprintf("Hi %s,\n\nThe password for your account was changed at %s. If you did not do this, contact support immediately.\n",
			a.Username, when),
		HTML: fmt.Sprintf("<p>Hi %s,</p><p>The password for your account was changed at %s. If you did not do this, contact support immediately.</p>",
			html.EscapeString(a.Username), when),
	}
}
