// Package events defines the event types published on the in-process bus.
// Game and session transitions are announced here so telemetry and
// operator surfaces can observe them without touching engine locks.
package events

import "time"

// EventType names a kind of event.
type EventType string

const (
	// Session lifecycle
	EventSessionOpened        EventType = "session_opened"
	EventSessionAuthenticated EventType = "session_authenticated"
	EventSessionClosed        EventType = "session_closed"

	// Game lifecycle
	EventGameCreated      EventType = "game_created"
	EventGameStateChanged EventType = "game_state_changed"
	EventGameRemoved      EventType = "game_removed"
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
	EventHostMigrated     EventType = "host_migrated"

	// Matchmaking
	EventMatchmakingStarted   EventType = "matchmaking_started"
	EventMatchmakingMatched   EventType = "matchmaking_matched"
	EventMatchmakingFailed    EventType = "matchmaking_failed"
	EventMatchmakingCancelled EventType = "matchmaking_cancelled"

	// System
	EventHeartbeat EventType = "heartbeat"
	EventShutdown  EventType = "shutdown"
)

// AllEventTypes lists every type a telemetry sink may subscribe to.
var AllEventTypes = []EventType{
	EventSessionOpened,
	EventSessionAuthenticated,
	EventSessionClosed,
	EventGameCreated,
	EventGameStateChanged,
	EventGameRemoved,
	EventPlayerJoined,
	EventPlayerLeft,
	EventHostMigrated,
	EventMatchmakingStarted,
	EventMatchmakingMatched,
	EventMatchmakingFailed,
	EventMatchmakingCancelled,
	EventHeartbeat,
}

// Event is a single message on the bus.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// SessionPayload accompanies session lifecycle events.
type SessionPayload struct {
	SessionID uint32 `json:"session_id"`
	AccountID uint64 `json:"account_id,omitempty"`
	Persona   string `json:"persona,omitempty"`
	Remote    string `json:"remote,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// GamePayload accompanies game created/removed events.
type GamePayload struct {
	GameID   uint32   `json:"game_id"`
	State    string   `json:"state"`
	Host     uint32   `json:"host"`
	Members  []uint32 `json:"members"`
	Capacity int      `json:"capacity"`
}

// StateChangePayload accompanies EventGameStateChanged.
type StateChangePayload struct {
	GameID uint32 `json:"game_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// MembershipPayload accompanies player joined/left and host migration.
type MembershipPayload struct {
	GameID    uint32 `json:"game_id"`
	SessionID uint32 `json:"session_id"`
	Host      uint32 `json:"host"`
	Reason    string `json:"reason,omitempty"`
}

// MatchmakingPayload accompanies matchmaking events.
type MatchmakingPayload struct {
	SessionID uint32            `json:"session_id"`
	GameID    uint32            `json:"game_id,omitempty"`
	Criteria  map[string]string `json:"criteria,omitempty"`
	Waited    time.Duration     `json:"waited_ns,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// HeartbeatPayload is published periodically with server totals.
type HeartbeatPayload struct {
	Sessions       int     `json:"sessions"`
	Authenticated  int     `json:"authenticated"`
	Games          int     `json:"games"`
	Queued         int     `json:"queued"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}
