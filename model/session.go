package model

import (
	"context"
	"slices"
	"time"
)

// Roles allowed to sign in to the dashboard.
const (
	RoleOwner = "Owner"
	RoleAdmin = "Admin"
)

// Session describes the signed-in admin as read from the bearer token.
// It is immutable after construction and safe for concurrent reads.
type Session struct {
	SubjectID string    `json:"subjectId"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
	Persisted bool      `json:"remembered"`
}

// Expired reports whether the token's expiry is at or before now. Tokens
// without an expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// HasRole returns true if the session has any of the given roles.
func (s *Session) HasRole(roles ...string) bool {
	return slices.Contains(roles, s.Role)
}

type sessionKey struct{}

// WithSession attaches a Session to the given context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom extracts the Session from the context, or returns nil if not
// present.
func SessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
