// Package notify turns game engine transitions into server push packets on
// the affected sessions' outbound queues, and mirrors them onto the event
// bus.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

// Sessions delivers pushes. Push disconnects a recipient whose queue is
// full and reports session.ErrOutboundFull.
type Sessions interface {
	Push(id uint32, p protocol.Packet) error
}

// Dispatcher implements game.Notifier.
type Dispatcher struct {
	sessions Sessions
	bus      *events.EventBus
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

var _ game.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. bus and m may be nil.
func NewDispatcher(sessions Sessions, bus *events.EventBus, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		sessions: sessions,
		bus:      bus,
		metrics:  m,
		logger:   log.With().Str("component", "notify").Logger(),
	}
}

// push encodes body once and queues it for every recipient. Recipients that
// have gone away are skipped; recipients that cannot keep up are dropped.
func (d *Dispatcher) push(command uint16, body *tdf.Struct, to ...uint32) {
	p, err := protocol.NewPacketBuilder(protocol.ComponentGameManager, command).
		Type(protocol.TypeNotification).
		Body(body).
		Build()
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to build notification")
		return
	}

	for _, sid := range to {
		if err := d.sessions.Push(sid, p); errors.Is(err, session.ErrOutboundFull) {
			d.metrics.NotificationDropped()
			d.logger.Warn().
				Uint32("session_id", sid).
				Str("command", protocol.CommandName(protocol.ComponentGameManager, command, true)).
				Msg("recipient too slow, disconnecting")
		}
	}
}

func (d *Dispatcher) emit(t events.EventType, source string, payload interface{}) {
	if d.bus == nil {
		return
	}
	d.bus.Emit(context.Background(), events.Event{Type: t, Source: source, Payload: payload})
}

func gameSource(id uint32) string { return fmt.Sprintf("game:%d", id) }

func gamePayload(g game.Snapshot) events.GamePayload {
	return events.GamePayload{
		GameID:   g.ID,
		State:    g.State.String(),
		Host:     g.Host(),
		Members:  g.MemberIDs(),
		Capacity: g.Capacity,
	}
}

// GameSetup sends the full game to a session that has just been seated.
func (d *Dispatcher) GameSetup(g game.Snapshot, to uint32, reason game.SetupReason) {
	seat, _ := g.Member(to)
	body := tdf.NewBuilder().
		Value(LabelGame, EncodeGame(g)).
		Uint(LabelSlot, uint64(seat.Slot)).
		Uint(LabelReason, uint64(reason)).
		Build()
	d.push(protocol.NotifyGameSetup, body, to)

	if to == g.Host() && reason != game.SetupJoined {
		d.emit(events.EventGameCreated, gameSource(g.ID), gamePayload(g))
	}
	d.emit(events.EventPlayerJoined, gameSource(g.ID), events.MembershipPayload{
		GameID:    g.ID,
		SessionID: to,
		Host:      g.Host(),
		Reason:    reason.String(),
	})
	if reason == game.SetupMatched {
		d.emit(events.EventMatchmakingMatched, gameSource(g.ID), events.MatchmakingPayload{
			SessionID: to,
			GameID:    g.ID,
		})
	}
}

// PlayerJoining tells existing members about a new player.
func (d *Dispatcher) PlayerJoining(g game.Snapshot, joined uint32, to []uint32) {
	seat, _ := g.Member(joined)
	body := tdf.NewBuilder().
		Uint(LabelGameID, uint64(g.ID)).
		Value("PDAT", EncodePlayer(seat)).
		Build()
	d.push(protocol.NotifyPlayerJoining, body, to...)
}

// PlayerRemoved tells the remaining members who left and who hosts now.
func (d *Dispatcher) PlayerRemoved(g game.Snapshot, removed uint32, reason game.RemoveReason, to []uint32) {
	body := tdf.NewBuilder().
		Uint(LabelGameID, uint64(g.ID)).
		Uint(LabelPlayerID, uint64(removed)).
		Uint(LabelReason, uint64(reason)).
		Uint(LabelHost, uint64(g.Host())).
		Build()
	d.push(protocol.NotifyPlayerRemoved, body, to...)

	d.emit(events.EventPlayerLeft, gameSource(g.ID), events.MembershipPayload{
		GameID:    g.ID,
		SessionID: removed,
		Host:      g.Host(),
		Reason:    reason.String(),
	})
}

// HostMigrated has no packet of its own; PlayerRemoved carries the new host.
func (d *Dispatcher) HostMigrated(g game.Snapshot, previous uint32) {
	d.logger.Info().
		Uint32("game_id", g.ID).
		Uint32("previous", previous).
		Uint32("host", g.Host()).
		Msg("host migrated")
	d.emit(events.EventHostMigrated, gameSource(g.ID), events.MembershipPayload{
		GameID:    g.ID,
		SessionID: previous,
		Host:      g.Host(),
	})
}

func (d *Dispatcher) GameStateChanged(g game.Snapshot, from game.State, to []uint32) {
	body := tdf.NewBuilder().
		Uint(LabelGameID, uint64(g.ID)).
		Uint(LabelGameState, uint64(g.State)).
		Build()
	d.push(protocol.NotifyGameStateChange, body, to...)

	d.emit(events.EventGameStateChanged, gameSource(g.ID), events.StateChangePayload{
		GameID: g.ID,
		From:   from.String(),
		To:     g.State.String(),
	})
}

func (d *Dispatcher) GameAttributesChanged(g game.Snapshot, changed map[string]string, to []uint32) {
	body := tdf.NewBuilder().
		Uint(LabelGameID, uint64(g.ID)).
		StringMap(LabelAttributes, changed).
		Build()
	d.push(protocol.NotifyGameAttribChange, body, to...)
}

func (d *Dispatcher) PlayerAttributesChanged(g game.Snapshot, player uint32, changed map[string]string, to []uint32) {
	body := tdf.NewBuilder().
		Uint(LabelGameID, uint64(g.ID)).
		Uint(LabelPlayerID, uint64(player)).
		StringMap(LabelAttributes, changed).
		Build()
	d.push(protocol.NotifyPlayerAttribChange, body, to...)
}

func (d *Dispatcher) GameRemoved(g game.Snapshot) {
	d.emit(events.EventGameRemoved, gameSource(g.ID), gamePayload(g))
}

func (d *Dispatcher) MatchmakingQueued(sid uint32, criteria map[string]string) {
	d.emit(events.EventMatchmakingStarted, fmt.Sprintf("session:%d", sid), events.MatchmakingPayload{
		SessionID: sid,
		Criteria:  criteria,
	})
}

func (d *Dispatcher) MatchmakingCancelled(sid uint32) {
	d.emit(events.EventMatchmakingCancelled, fmt.Sprintf("session:%d", sid), events.MatchmakingPayload{
		SessionID: sid,
		Reason:    "cancelled",
	})
}

// MatchmakingFailed tells a session its request timed out.
func (d *Dispatcher) MatchmakingFailed(sid uint32, waited time.Duration) {
	body := tdf.NewBuilder().
		Uint("USID", uint64(sid)).
		Uint("WAIT", uint64(waited.Milliseconds())).
		Build()
	d.push(protocol.NotifyMatchmakingFailed, body, sid)

	d.emit(events.EventMatchmakingFailed, fmt.Sprintf("session:%d", sid), events.MatchmakingPayload{
		SessionID: sid,
		Waited:    waited,
		Reason:    "timeout",
	})
}
