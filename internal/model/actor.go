package model

import "github.com/google/uuid"

// Actor is the authenticated identity the middleware resolves from verified
// token claims and attaches to the request context. It is never loaded from
// the users table; the token is authoritative.
type Actor struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

// User builds the mirror row persisted alongside the actor's actions.
func (a Actor) User() *User {
	return &User{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}
