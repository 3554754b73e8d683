package handlers

import (
	"context"

	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/notify"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/tdf"
)

func (d *Deps) createGame(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	capacity, err := req.Body.UintOr(notify.LabelCapacity, 0)
	if err != nil {
		return nil, err
	}
	attrs, err := optionalStringMap(req.Body, notify.LabelAttributes)
	if err != nil {
		return nil, err
	}
	var settings []byte
	if req.Body.Has(notify.LabelSettings) {
		if settings, err = req.Body.GetBlob(notify.LabelSettings); err != nil {
			return nil, err
		}
	}
	if capacity > uint64(d.Games.Config().MaxCapacity) {
		capacity = uint64(d.Games.Config().MaxCapacity)
	}

	var snap game.Snapshot
	err = d.Sessions.Seat(req.Session, func() (err error) {
		snap, err = d.Games.Create(req.Session.ID(), int(capacity), attrs, settings)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tdf.NewBuilder().
		Uint(notify.LabelGameID, uint64(snap.ID)).
		Uint(notify.LabelCapacity, uint64(snap.Capacity)).
		Build(), nil
}

func (d *Deps) destroyGame(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	gid, err := uint32Field(req.Body, notify.LabelGameID)
	if err != nil {
		return nil, err
	}
	return nil, d.Games.Destroy(gid, req.Session.ID())
}

func (d *Deps) advanceGameState(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	gid, err := uint32Field(req.Body, notify.LabelGameID)
	if err != nil {
		return nil, err
	}
	target, err := req.Body.GetUint(notify.LabelGameState)
	if err != nil {
		return nil, err
	}
	if target > uint64(game.StateComplete) {
		return nil, router.Errorf(protocol.ErrInvalidState, "unknown game state %d", target)
	}
	return nil, d.Games.AdvanceState(gid, req.Session.ID(), game.State(target))
}

func (d *Deps) setGameAttributes(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	gid, err := uint32Field(req.Body, notify.LabelGameID)
	if err != nil {
		return nil, err
	}
	attrs, err := req.Body.GetStringMap(notify.LabelAttributes)
	if err != nil {
		return nil, err
	}
	return nil, d.Games.SetAttributes(gid, req.Session.ID(), attrs)
}

func (d *Deps) setPlayerAttributes(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	gid, err := uint32Field(req.Body, notify.LabelGameID)
	if err != nil {
		return nil, err
	}
	target := req.Session.ID()
	if req.Body.Has(notify.LabelPlayerID) {
		if target, err = uint32Field(req.Body, notify.LabelPlayerID); err != nil {
			return nil, err
		}
	}
	attrs, err := req.Body.GetStringMap(notify.LabelAttributes)
	if err != nil {
		return nil, err
	}
	return nil, d.Games.SetPlayerAttributes(gid, req.Session.ID(), target, attrs)
}

func (d *Deps) joinGame(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	gid, err := uint32Field(req.Body, notify.LabelGameID)
	if err != nil {
		return nil, err
	}
	var snap game.Snapshot
	err = d.Sessions.Seat(req.Session, func() (err error) {
		snap, err = d.Games.Join(gid, req.Session.ID())
		return err
	})
	if err != nil {
		return nil, err
	}
	seat, _ := snap.Member(req.Session.ID())
	return tdf.NewBuilder().
		Uint(notify.LabelGameID, uint64(snap.ID)).
		Uint(notify.LabelSlot, uint64(seat.Slot)).
		Build(), nil
}

// removePlayer leaves the game, or kicks PID when the host names another
// player.
func (d *Deps) removePlayer(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	self := req.Session.ID()
	target := self
	var err error
	if req.Body.Has(notify.LabelPlayerID) {
		if target, err = uint32Field(req.Body, notify.LabelPlayerID); err != nil {
			return nil, err
		}
	}

	if target != self {
		gid, err := uint32Field(req.Body, notify.LabelGameID)
		if err != nil {
			return nil, err
		}
		return nil, d.Games.Kick(gid, self, target)
	}

	if req.Body.Has(notify.LabelGameID) {
		gid, err := uint32Field(req.Body, notify.LabelGameID)
		if err != nil {
			return nil, err
		}
		if m, ok := d.Games.MembershipOf(self); !ok || m.GameID != gid {
			return nil, game.ErrNotInGame
		}
	}
	_, err = d.Sessions.Leave(req.Session)
	return nil, err
}

func (d *Deps) startMatchmaking(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	criteria, err := optionalStringMap(req.Body, "CRIT")
	if err != nil {
		return nil, err
	}
	var res game.MatchResult
	err = d.Sessions.Seat(req.Session, func() (err error) {
		res, err = d.Games.StartMatchmaking(req.Session.ID(), criteria)
		return err
	})
	if err != nil {
		return nil, err
	}
	b := tdf.NewBuilder().
		Bool("MTCH", res.Matched).
		Bool("QUED", res.Queued)
	if res.Matched {
		b.Uint(notify.LabelGameID, uint64(res.GameID))
	}
	return b.Build(), nil
}

func (d *Deps) cancelMatchmaking(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	cancelled := d.Games.CancelMatchmaking(req.Session.ID())
	return tdf.NewBuilder().Bool("CANC", cancelled).Build(), nil
}

func (d *Deps) replayGame(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	gid, err := uint32Field(req.Body, notify.LabelGameID)
	if err != nil {
		return nil, err
	}
	return nil, d.Games.Replay(gid, req.Session.ID())
}
