package game

import "time"

// Notifier receives every game transition after the engine has released
// its locks. Implementations must not block.
type Notifier interface {
	GameSetup(g Snapshot, to uint32, reason SetupReason)
	PlayerJoining(g Snapshot, joined uint32, to []uint32)
	PlayerRemoved(g Snapshot, removed uint32, reason RemoveReason, to []uint32)
	HostMigrated(g Snapshot, previous uint32)
	GameStateChanged(g Snapshot, from State, to []uint32)
	GameAttributesChanged(g Snapshot, changed map[string]string, to []uint32)
	PlayerAttributesChanged(g Snapshot, player uint32, changed map[string]string, to []uint32)
	GameRemoved(g Snapshot)

	MatchmakingQueued(sid uint32, criteria map[string]string)
	MatchmakingCancelled(sid uint32)
	MatchmakingFailed(sid uint32, waited time.Duration)
}

// MembershipObserver mirrors engine membership into session state. It is
// called after the engine has released its locks, so updates for one
// session may arrive out of order; Seq resolves that.
type MembershipObserver interface {
	Attached(sid uint32, m Membership)
	Detached(sid uint32, gameID uint32, seq uint64)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) GameSetup(Snapshot, uint32, SetupReason)                               {}
func (NopNotifier) PlayerJoining(Snapshot, uint32, []uint32)                              {}
func (NopNotifier) PlayerRemoved(Snapshot, uint32, RemoveReason, []uint32)                {}
func (NopNotifier) HostMigrated(Snapshot, uint32)                                         {}
func (NopNotifier) GameStateChanged(Snapshot, State, []uint32)                            {}
func (NopNotifier) GameAttributesChanged(Snapshot, map[string]string, []uint32)           {}
func (NopNotifier) PlayerAttributesChanged(Snapshot, uint32, map[string]string, []uint32) {}
func (NopNotifier) GameRemoved(Snapshot)                                                  {}
func (NopNotifier) MatchmakingQueued(uint32, map[string]string)                           {}
func (NopNotifier) MatchmakingCancelled(uint32)                                           {}
func (NopNotifier) MatchmakingFailed(uint32, time.Duration)                               {}

type nopObserver struct{}

func (nopObserver) Attached(uint32, Membership)     {}
func (nopObserver) Detached(uint32, uint32, uint64) {}
