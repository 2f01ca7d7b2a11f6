// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/identity/identity.go
// Summary: Bearer-token verification and per-session identity resolution.
// Usage: Used by the handshake and the REST frontdoor to resolve callers.
// Notes: The identity provider is external; this package only checks HS256 signatures.

package identity

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var ErrNoVerifiedUser = errors.New("identity: no verified user")

// Identity is the resolved per-session caller. It is never persisted.
type Identity struct {
	UserID      string
	DisplayName string
	IsAnonymous bool
	AvatarColor string
}

// Verifier checks opaque bearer tokens against a shared HS256 secret. With
// no secret configured every token resolves to "no verified user".
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier. An empty secret disables verification.
func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a shared secret is configured.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify returns the token subject when the signature and expiry check
// out, and ErrNoVerifiedUser otherwise. An absent token is not an error
// condition worth distinguishing; callers treat both the same.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" || !v.Enabled() {
		return "", ErrNoVerifiedUser
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrNoVerifiedUser
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrNoVerifiedUser
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrNoVerifiedUser
	}
	return sub, nil
}

// Resolve applies the identity precedence: verified token subject, then
// the client-supplied id, then a fresh UUID. The display name falls back
// to a deterministic anonymous name and the avatar color is always hashed
// from the final userId.
func Resolve(verifiedUserID, clientID, displayName string, isAnonymous bool) Identity {
	userID := verifiedUserID
	anonymous := isAnonymous
	if userID == "" {
		userID = clientID
		anonymous = true
	}
	if userID == "" {
		userID = uuid.NewString()
		anonymous = true
	}
	name := displayName
	if name == "" {
		name = AnonymousName(userID)
	}
	return Identity{
		UserID:      userID,
		DisplayName: name,
		IsAnonymous: anonymous,
		AvatarColor: AvatarColor(userID),
	}
}

var anonymousAnimals = []string{
	"Otter", "Badger", "Lynx", "Heron", "Marmot", "Puffin",
	"Ibex", "Raven", "Stoat", "Walrus", "Gecko", "Bison",
	"Falcon", "Newt", "Osprey", "Tapir",
}

var avatarPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#800000", "#aaffc3", "#808000",
}

// AnonymousName derives a stable "Anonymous <Animal>" name from a user id.
func AnonymousName(userID string) string {
	return "Anonymous " + anonymousAnimals[hashIndex(userID, len(anonymousAnimals))]
}

// AvatarColor derives a stable palette color from a user id.
func AvatarColor(userID string) string {
	return avatarPalette[hashIndex(userID, len(avatarPalette))]
}

func hashIndex(s string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(n))
}
