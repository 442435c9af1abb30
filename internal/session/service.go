// Package session stores the conversational contexts of the agents: one
// append-only history per (app, user, session id).
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Role of a turn's author.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message in a session's history.
type Turn struct {
	Role      Role      `json:"role"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies a session.
type Key struct {
	AppName string
	UserID  string
	ID      string
}

// Session is a snapshot of a conversational context.
type Session struct {
	AppName   string    `json:"app_name"`
	UserID    string    `json:"user_id"`
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the session's identifier triple.
func (s *Session) Key() Key {
	return Key{AppName: s.AppName, UserID: s.UserID, ID: s.ID}
}

// Service manages sessions. Implementations must be safe for concurrent use.
type Service interface {
	// CreateSession creates an empty session. Fails with ErrExists.
	CreateSession(ctx context.Context, key Key) (*Session, error)
	// GetSession returns a snapshot. Fails with ErrNotFound.
	GetSession(ctx context.Context, key Key) (*Session, error)
	// AppendTurn appends turns to an existing session. Fails with ErrNotFound.
	AppendTurn(ctx context.Context, key Key, turns ...Turn) error
	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, key Key) error
}
