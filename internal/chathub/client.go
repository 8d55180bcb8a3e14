package chathub

import "campusskill/backend/internal/models"

// Client is one live connection of an authenticated user. A user may hold
// several connections at once; each gets its own ConnID.
type Client interface {
	// GetConnID returns the unique identifier of this connection.
	GetConnID() string
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel the hub writes outbound events to.
	// Only the hub's Run goroutine sends on it.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the send channel; the write pump then closes the connection.
	// The hub calls it exactly once, when the client is unregistered or dropped.
	Close()
}
