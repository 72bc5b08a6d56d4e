package chathub

import (
	"accord/backend/internal/models"
	"errors"
)

var (
	// ErrConnectionClosed is returned by Send after Close.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the client is not draining
	// its buffer fast enough.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one live connection. It abstracts the transport so the registry,
// dispatcher and pipeline can be driven without a real socket.
type Client interface {
	// GetID returns the transport-assigned connection id.
	GetID() string
	// GetIdentity returns the verified identity; the zero value for anonymous
	// connections.
	GetIdentity() models.Identity
	// GetLanguage returns the language used for the client's error notices.
	GetLanguage() string

	// Send enqueues an event without blocking. Events sent to one client are
	// written in the order Send was called.
	Send(evt models.OutboundEvent) error

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. It is safe to call more than once.
	Close()
}
