package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one inbound message and the reply chosen for it.
type Interaction struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Channel   string    `json:"channel"` // "http", "matrix", "mcp"
	Sender    string    `json:"sender,omitempty"`
	Query     string    `json:"query"`
	Reply     string    `json:"reply"`
	Path      string    `json:"path"` // "emoji", "similarity", "fallback"
	Score     float64   `json:"score"`
}

// Dispatch is one outbound send attempt, scheduled or manual.
type Dispatch struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Origin     string    `json:"origin"` // "trigger:<name>" or "manual"
	Recipient  string    `json:"recipient"`
	Text       string    `json:"text"`
	Status     string    `json:"status"` // "sent", "failed"
	Error      string    `json:"error,omitempty"`
	ExternalID string    `json:"external_id,omitempty"` // transport message ID, when the send succeeded
}
