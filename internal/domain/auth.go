package domain

import "time"

// SessionToken is the bearer token issued to the HTTP caller holding the live session.
type SessionToken struct {
	Token     string    `json:"token"`
	SubjectID string    `json:"subject_id"`
	IsOwner   bool      `json:"is_owner"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
