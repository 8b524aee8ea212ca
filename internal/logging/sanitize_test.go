// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package logging

import (
	"strings"
	"testing"
)

func TestSanitizeToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short", "abc123", "***"},
		{"boundary", "123456789012", "***"},
		{"long", "eyJhbGciOiJIUzI1NiJ9abcd", "eyJh...abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeToken(tt.input); got != tt.want {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	got := SanitizeSessionID("sess-0123456789abcdef")
	if strings.Contains(got, "0123456789") {
		t.Errorf("expected middle of session ID masked, got %q", got)
	}
	if !strings.HasPrefix(got, "sess") {
		t.Errorf("expected masked ID to keep prefix, got %q", got)
	}
}

func TestSanitizeUserID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"u-1", "***"},
		{"user-12345678", "user...5678"},
	}

	for _, tt := range tests {
		if got := SanitizeUserID(tt.input); got != tt.want {
			t.Errorf("SanitizeUserID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	t.Run("redacts sensitive content", func(t *testing.T) {
		for _, msg := range []string{
			"invalid password for user",
			"Bearer abc rejected",
			"bad TOKEN format",
		} {
			if got := SanitizeError(msg); got != "authentication error" {
				t.Errorf("SanitizeError(%q) = %q, want generic message", msg, got)
			}
		}
	})

	t.Run("passes ordinary errors through", func(t *testing.T) {
		msg := "connection refused"
		if got := SanitizeError(msg); got != msg {
			t.Errorf("SanitizeError(%q) = %q, want unchanged", msg, got)
		}
	})

	t.Run("truncates long errors", func(t *testing.T) {
		msg := strings.Repeat("x", 300)
		got := SanitizeError(msg)
		if len(got) != 203 { // 200 chars + "..."
			t.Errorf("expected truncation to 203 chars, got %d", len(got))
		}
	})
}
