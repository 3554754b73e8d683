// Package game owns the game registry and the matchmaking queue. It never
// holds sessions, only their ids; session bookkeeping happens through the
// MembershipObserver and client pushes through the Notifier.
package game

import (
	"fmt"
	"strings"
)

// State is the lifecycle stage of a game.
type State int

const (
	StateLobby State = iota
	StateStarting
	StateInProgress
	StateComplete
)

var stateStrings = map[State]string{
	StateLobby:      "lobby",
	StateStarting:   "starting",
	StateInProgress: "in_progress",
	StateComplete:   "complete",
}

func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalJSON serializes State as its lowercase name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ParseState accepts either the numeric wire value or the name.
func ParseState(v string) (State, error) {
	for st, name := range stateStrings {
		if strings.EqualFold(v, name) || v == fmt.Sprint(int(st)) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown game state %q", v)
}

// transitions lists the moves AdvanceState accepts. Replay has its own
// entry point.
var transitions = map[State][]State{
	StateLobby:      {StateStarting, StateComplete},
	StateStarting:   {StateInProgress, StateLobby, StateComplete},
	StateInProgress: {StateComplete},
}

// CanTransition reports whether a host may move a game from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetupReason tells a client why it received a game setup push.
type SetupReason int

const (
	SetupCreated SetupReason = iota
	SetupJoined
	SetupMatched
)

func (r SetupReason) String() string {
	switch r {
	case SetupCreated:
		return "created"
	case SetupJoined:
		return "joined"
	case SetupMatched:
		return "matched"
	default:
		return "unknown"
	}
}

// RemoveReason tells remaining members why a player left.
type RemoveReason int

const (
	RemoveLeft RemoveReason = iota
	RemoveDisconnected
	RemoveKicked
	RemoveGameDestroyed
)

func (r RemoveReason) String() string {
	switch r {
	case RemoveLeft:
		return "left"
	case RemoveDisconnected:
		return "disconnected"
	case RemoveKicked:
		return "kicked"
	case RemoveGameDestroyed:
		return "game_destroyed"
	default:
		return "unknown"
	}
}
