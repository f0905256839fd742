// Package events publishes ride lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"
)

// Event is one lifecycle fact.
type Event struct {
	Name       string    `json:"event"`
	RideID     string    `json:"ride_id,omitempty"`
	AccountID  string    `json:"account_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// Key partitions events so that one ride's events stay ordered.
func (e Event) Key() string {
	if e.RideID != "" {
		return e.RideID
	}
	return e.AccountID
}

// Publisher delivers events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
