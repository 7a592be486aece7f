package host

import (
	"context"
	"time"
)

// EventType identifies one of the host event kinds the plugin consumes.
type EventType string

const (
	EventPlayerJoined EventType = "player_joined"
	EventGameEnded    EventType = "game_ended"
)

// Event is a host-emitted occurrence. Data carries the kind-specific payload
// (PlayerJoined or GameEnded); handlers must not assume it is well-formed.
type Event struct {
	Type EventType
	Time time.Time
	Data any
}

// PlayerJoined is the payload of EventPlayerJoined.
type PlayerJoined struct {
	Player string
	Room   string
}

// GameEnded is the payload of EventGameEnded.
type GameEnded struct {
	Reason string
}

// EventSource is the registration model the host exposes for its events.
// Subscribe returns a receive channel and an unsubscribe func; calling the
// func releases the subscription and closes the channel. Unsubscribe is
// idempotent.
type EventSource interface {
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Instance is one addressable broadcast target: a running game instance that
// can deliver a chat message to all its members. Delivery may fail per
// instance without affecting any other instance.
type Instance interface {
	ID() string
	SendChat(ctx context.Context, text string) error
}

// InstanceSource enumerates the current set of broadcast targets. The host
// owns the set; callers must not hold the returned slice past one fan-out.
type InstanceSource interface {
	Instances() ([]Instance, error)
}
