// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/identity/identity_test.go
// Summary: Exercises token verification and identity precedence.
// Usage: Executed during `go test` to guard against regressions.
// Notes: Tokens are minted with the same jwt library the verifier uses.

package identity

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func mintToken(t *testing.T, secret, sub string, expiry time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "exp": time.Now().Add(expiry).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier("s3cret")
	sub, err := v.Verify(mintToken(t, "s3cret", "user_42", time.Hour))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if sub != "user_42" {
		t.Fatalf("expected subject user_42, got %q", sub)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("s3cret")
	if _, err := v.Verify(mintToken(t, "s3cret", "user_42", -time.Hour)); !errors.Is(err, ErrNoVerifiedUser) {
		t.Fatalf("expected ErrNoVerifiedUser, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewVerifier("s3cret")
	if _, err := v.Verify(mintToken(t, "other", "user_42", time.Hour)); !errors.Is(err, ErrNoVerifiedUser) {
		t.Fatalf("expected ErrNoVerifiedUser, got %v", err)
	}
}

func TestVerifyDisabledWithoutSecret(t *testing.T) {
	v := NewVerifier("")
	if v.Enabled() {
		t.Fatalf("verifier should be disabled")
	}
	if _, err := v.Verify(mintToken(t, "s3cret", "user_42", time.Hour)); !errors.Is(err, ErrNoVerifiedUser) {
		t.Fatalf("expected ErrNoVerifiedUser, got %v", err)
	}
}

func TestResolvePrecedence(t *testing.T) {
	id := Resolve("user_42", "client-1", "Ada", false)
	if id.UserID != "user_42" || id.IsAnonymous {
		t.Fatalf("verified subject should win: %+v", id)
	}

	id = Resolve("", "client-1", "", true)
	if id.UserID != "client-1" || !id.IsAnonymous {
		t.Fatalf("clientId should be second: %+v", id)
	}

	id = Resolve("", "", "", true)
	if id.UserID == "" {
		t.Fatalf("expected synthesized uuid")
	}
	if !id.IsAnonymous {
		t.Fatalf("synthesized identity must be anonymous")
	}
}

func TestResolveAnonymousNameDeterministic(t *testing.T) {
	a := Resolve("", "client-1", "", true)
	b := Resolve("", "client-1", "", true)
	if a.DisplayName != b.DisplayName || a.AvatarColor != b.AvatarColor {
		t.Fatalf("identity not deterministic: %+v vs %+v", a, b)
	}
	if !strings.HasPrefix(a.DisplayName, "Anonymous ") {
		t.Fatalf("expected anonymous name, got %q", a.DisplayName)
	}
}

func TestResolveKeepsProvidedDisplayName(t *testing.T) {
	id := Resolve("", "client-1", "Grace", true)
	if id.DisplayName != "Grace" {
		t.Fatalf("expected provided name kept, got %q", id.DisplayName)
	}
}
