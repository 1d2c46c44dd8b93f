package id

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewMessageID returns a fresh UUID for a pending approval. Message ids are
// never reused within a process.
func NewMessageID() string {
	return uuid.NewString()
}

// NewConnectionID generates a sortable identifier for a transport connection.
func NewConnectionID(role string) string {
	if role == "" {
		role = "conn"
	}
	return fmt.Sprintf("%s-%s", role, ksuid.New().String())
}

// NewRequestID generates an identifier for requests that arrive without one.
func NewRequestID() string {
	return fmt.Sprintf("req-%s", ksuid.New().String())
}
