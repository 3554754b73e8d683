package game

import (
	"sync"
	"time"
)

// Attribute keys with meaning to the engine.
const (
	AttrVisibility   = "coopGameVisibility"
	VisibilityPublic = "1"
	MatchAny         = "matchAny"
)

// Member is one seat in a game.
type Member struct {
	SessionID  uint32            `json:"session_id"`
	Slot       int               `json:"slot"`
	JoinedAt   time.Time         `json:"joined_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Snapshot is a point-in-time copy of a game, safe to use without locks.
type Snapshot struct {
	ID         uint32            `json:"id"`
	State      State             `json:"state"`
	Capacity   int               `json:"capacity"`
	Members    []Member          `json:"members"`
	Attributes map[string]string `json:"attributes"`
	Settings   []byte            `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Host returns the host's session id, or 0 for an empty game.
func (s *Snapshot) Host() uint32 {
	if len(s.Members) == 0 {
		return 0
	}
	return s.Members[0].SessionID
}

// MemberIDs returns member session ids in join order.
func (s *Snapshot) MemberIDs() []uint32 {
	ids := make([]uint32, len(s.Members))
	for i, m := range s.Members {
		ids[i] = m.SessionID
	}
	return ids
}

// Member returns the seat of sid.
func (s *Snapshot) Member(sid uint32) (Member, bool) {
	for _, m := range s.Members {
		if m.SessionID == sid {
			return m, true
		}
	}
	return Member{}, false
}

// Summary is the read-only view returned by List.
type Summary struct {
	ID         uint32            `json:"id"`
	State      State             `json:"state"`
	Host       uint32            `json:"host"`
	Players    int               `json:"players"`
	Capacity   int               `json:"capacity"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Membership identifies the game and seat a session occupies. Seq orders
// membership changes so observers can drop stale updates.
type Membership struct {
	GameID uint32
	Slot   int
	Seq    uint64
}

// instance is the mutable game record. Fields are guarded by mu; the engine
// holds its own lock around every mutation as well, so mu only matters for
// readers taking snapshots.
type instance struct {
	mu         sync.Mutex
	id         uint32
	state      State
	capacity   int
	members    []Member
	attributes map[string]string
	settings   []byte
	createdAt  time.Time
	updatedAt  time.Time
}

func (g *instance) snapshotLocked() Snapshot {
	members := make([]Member, len(g.members))
	for i, m := range g.members {
		m.Attributes = copyAttrs(m.Attributes)
		members[i] = m
	}
	return Snapshot{
		ID:         g.id,
		State:      g.state,
		Capacity:   g.capacity,
		Members:    members,
		Attributes: copyAttrs(g.attributes),
		Settings:   append([]byte(nil), g.settings...),
		CreatedAt:  g.createdAt,
	}
}

func (g *instance) snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *instance) summary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	var host uint32
	if len(g.members) > 0 {
		host = g.members[0].SessionID
	}
	return Summary{
		ID:         g.id,
		State:      g.state,
		Host:       host,
		Players:    len(g.members),
		Capacity:   g.capacity,
		Attributes: copyAttrs(g.attributes),
		CreatedAt:  g.createdAt,
	}
}

func (g *instance) hostLocked() uint32 {
	if len(g.members) == 0 {
		return 0
	}
	return g.members[0].SessionID
}

func (g *instance) indexLocked(sid uint32) int {
	for i, m := range g.members {
		if m.SessionID == sid {
			return i
		}
	}
	return -1
}

// freeSlotLocked returns the lowest seat not taken.
func (g *instance) freeSlotLocked() int {
	taken := make(map[int]bool, len(g.members))
	for _, m := range g.members {
		taken[m.Slot] = true
	}
	for slot := 0; ; slot++ {
		if !taken[slot] {
			return slot
		}
	}
}

// addLocked seats sid. The caller has checked capacity and state.
func (g *instance) addLocked(sid uint32, now time.Time) Member {
	m := Member{SessionID: sid, Slot: g.freeSlotLocked(), JoinedAt: now}
	g.members = append(g.members, m)
	g.updatedAt = now
	return m
}

// removeLocked drops the member at index i, preserving join order so the
// next member becomes host when i is 0.
func (g *instance) removeLocked(i int, now time.Time) Member {
	m := g.members[i]
	g.members = append(g.members[:i:i], g.members[i+1:]...)
	g.updatedAt = now
	return m
}

func copyAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// mergeAttrs applies changes to dst. An empty value deletes the key.
func mergeAttrs(dst, changes map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(changes))
	}
	for k, v := range changes {
		if v == "" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return dst
}
