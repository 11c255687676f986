// Package events provides real-time event delivery to subscribed users via
// WebSocket and to registered system sinks via a retrying dispatcher.
//
// Events are published by the engine after each committed mutation, in commit
// order. Delivery is at-most-once per connection: a subscriber that cannot
// drain its queue is evicted rather than allowed to stall the publisher.
package events

import (
	"time"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// Kind classifies an event.
type Kind string

const (
	KindCreated       Kind = "created"
	KindEdited        Kind = "edited"
	KindStatusChanged Kind = "status_changed"
	KindApproved      Kind = "approved"
	KindCommented     Kind = "commented"
)

// Event is the payload delivered to watchers and sinks. Operation is a
// snapshot taken at commit time; later edits do not retroactively change
// delivered events.
type Event struct {
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor"`
	Operation *models.Operation `json:"operation"`

	// From and To are set for status_changed events only.
	From models.Status `json:"from,omitempty"`
	To   models.Status `json:"to,omitempty"`

	// Note carries the comment text for commented events.
	Note string `json:"note,omitempty"`
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action string `json:"action"` // "ping"
}
