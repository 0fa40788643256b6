// Package events defines the event types published by the palrcon services.
package events

import (
	"time"

	"github.com/energizer-project/palrcon/internal/protocol"
)

// EventType names an event published through the Bus.
type EventType string

const (
	// Player tracking
	EventPlayersPolled    EventType = "players_polled"
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
	EventUnresolvedPlayer EventType = "unresolved_player"

	// Administration
	EventModeration      EventType = "moderation"
	EventCommandExecuted EventType = "command_executed"

	// Service
	EventHealthChanged EventType = "health_changed"
	EventShutdown      EventType = "shutdown"
)

// AllTypes lists every event type, in declaration order.
var AllTypes = []EventType{
	EventPlayersPolled,
	EventPlayerJoined,
	EventPlayerLeft,
	EventUnresolvedPlayer,
	EventModeration,
	EventCommandExecuted,
	EventHealthChanged,
	EventShutdown,
}

// Event is a single published event.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// New returns an event stamped with the current time.
func New(t EventType, source string, payload interface{}) Event {
	return Event{Type: t, Source: source, Time: time.Now(), Payload: payload}
}

// PlayersPolledPayload carries the result of a successful showplayers poll.
type PlayersPolledPayload struct {
	Players    []protocol.Player `json:"players"`
	Unresolved []protocol.Player `json:"unresolved"`
	Joined     int               `json:"joined"`
	Left       int               `json:"left"`
}

// PlayerPayload identifies one player for joined/left/unresolved events.
type PlayerPayload struct {
	Player protocol.Player `json:"player"`
}

// Moderation actions.
const (
	ActionKick      = "kick"
	ActionBan       = "ban"
	ActionBroadcast = "broadcast"
	ActionSave      = "save"
	ActionShutdown  = "shutdown"
	ActionDoExit    = "doexit"
)

// ModerationPayload records an administrative action against the server.
type ModerationPayload struct {
	Action   string `json:"action"`
	SteamID  string `json:"steam_id,omitempty"`
	Actor    string `json:"actor"`
	Detail   string `json:"detail,omitempty"`
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// CommandPayload records a raw command and its classification.
type CommandPayload struct {
	Command  string        `json:"command"`
	Actor    string        `json:"actor"`
	Success  bool          `json:"success"`
	Response string        `json:"response"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// HealthStatus is the reachability of the game server.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthChangedPayload is emitted when the health status transitions.
type HealthChangedPayload struct {
	Previous HealthStatus `json:"previous"`
	Current  HealthStatus `json:"current"`
	Version  string       `json:"version,omitempty"`
	Error    string       `json:"error,omitempty"`
}
