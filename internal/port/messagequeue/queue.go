// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Publisher publishes messages to a subject.
type Publisher interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error
}

// Queue is a Publisher with a connection lifecycle.
type Queue interface {
	Publisher

	// Drain flushes pending publishes before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for task lifecycle events.
const (
	SubjectTaskStatus  = "a2a.tasks.status" // every state transition
	SubjectTaskCreated = "a2a.tasks.created"
)
