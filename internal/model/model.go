// Package model defines domain entities shared by the client core, services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is an identity owned by the auth provider. Read-only to the client.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Account is the server-side credential record behind a User.
type Account struct {
	User
	PwdHash []byte // Argon2id(password, Salt)
	Salt    []byte // per-user salt
}

// Profile is per-user metadata, one-to-one with User.
type Profile struct {
	ID       uuid.UUID `json:"id"` // = User.id
	Username string    `json:"username"`
}

// DefaultUsername derives a username from the local part of an email.
func DefaultUsername(email string) string {
	if email == "" {
		return ""
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// Task is a single user-owned to-do item.
type Task struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Task       string    `json:"task"`
	IsComplete bool      `json:"is_complete"`
	InsertedAt time.Time `json:"inserted_at"`
}

// NewTask is an insert intent; id and inserted_at are assigned by the server.
type NewTask struct {
	UserID     uuid.UUID `json:"user_id"`
	Task       string    `json:"task"`
	IsComplete bool      `json:"is_complete"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Task       *string `json:"task,omitempty"`
	IsComplete *bool   `json:"is_complete,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool { return p.Task == nil && p.IsComplete == nil }

// Apply copies the patched fields from src into dst and returns dst.
func (p TaskPatch) Apply(dst, src Task) Task {
	if p.Task != nil {
		dst.Task = src.Task
	}
	if p.IsComplete != nil {
		dst.IsComplete = src.IsComplete
	}
	return dst
}

// Session is an authenticated session issued by the auth provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"` // seconds
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// RefreshToken is a stored refresh credential (hash only).
type RefreshToken struct {
	Hash      []byte
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// AuthEvent names an auth-state transition.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)
