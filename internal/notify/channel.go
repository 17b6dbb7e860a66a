// Package notify fans approval and scheduler notifications out to
// configured channels with bounded retry.
package notify

import (
	"context"
	"time"
)

// Channel delivers a notification to one destination.
type Channel interface {
	// Name identifies the channel in logs and the delivery log.
	Name() string

	// Send delivers the message. Errors are retried by the dispatcher.
	Send(ctx context.Context, message string) error
}

// Event is a notification as seen by in-process subscribers.
type Event struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
