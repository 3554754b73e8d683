package notify

import (
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/tdf"
)

// Labels shared by game notifications and game manager responses.
const (
	LabelGameID     = "GID"
	LabelGameState  = "GSTA"
	LabelHost       = "HOST"
	LabelCapacity   = "CAP"
	LabelAttributes = "ATTR"
	LabelPlayers    = "PROS"
	LabelPlayerID   = "PID"
	LabelSlot       = "SLOT"
	LabelReason     = "REAS"
	LabelGame       = "GAME"
	LabelSettings   = "GSET"
)

// EncodePlayer renders one game seat.
func EncodePlayer(m game.Member) *tdf.Struct {
	return tdf.NewBuilder().
		Uint(LabelPlayerID, uint64(m.SessionID)).
		Uint(LabelSlot, uint64(m.Slot)).
		StringMap(LabelAttributes, m.Attributes).
		Build()
}

// EncodeGame renders a full game snapshot.
func EncodeGame(g game.Snapshot) *tdf.Struct {
	players := make([]tdf.Value, 0, len(g.Members))
	for _, m := range g.Members {
		players = append(players, EncodePlayer(m))
	}
	b := tdf.NewBuilder().
		Uint(LabelGameID, uint64(g.ID)).
		Uint(LabelGameState, uint64(g.State)).
		Uint(LabelHost, uint64(g.Host())).
		Uint(LabelCapacity, uint64(g.Capacity)).
		StringMap(LabelAttributes, g.Attributes).
		List(LabelPlayers, tdf.TypeStruct, players...)
	if len(g.Settings) > 0 {
		b.Blob(LabelSettings, g.Settings)
	}
	return b.Build()
}

// EncodeSummary renders a List entry.
func EncodeSummary(s game.Summary) *tdf.Struct {
	return tdf.NewBuilder().
		Uint(LabelGameID, uint64(s.ID)).
		Uint(LabelGameState, uint64(s.State)).
		Uint(LabelHost, uint64(s.Host)).
		Uint("PCNT", uint64(s.Players)).
		Uint(LabelCapacity, uint64(s.Capacity)).
		StringMap(LabelAttributes, s.Attributes).
		Build()
}
