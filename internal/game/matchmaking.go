package game

import (
	"sort"
	"time"
)

// CompatibleFunc decides whether two criteria sets may share a game. It is
// also used to test a request against an open game's attributes.
type CompatibleFunc func(a, b map[string]string) bool

// DefaultCompatible treats criteria as rules: a key set on both sides must
// hold the same value unless either side is MatchAny. A key missing on one
// side matches anything.
func DefaultCompatible(a, b map[string]string) bool {
	for k, av := range a {
		bv, ok := b[k]
		if !ok || av == bv || av == MatchAny || bv == MatchAny {
			continue
		}
		return false
	}
	return true
}

type request struct {
	sid      uint32
	criteria map[string]string
	enqueued time.Time
}

// QueueEntry is a read-only view of one matchmaking request.
type QueueEntry struct {
	SessionID uint32            `json:"session_id"`
	Criteria  map[string]string `json:"criteria"`
	Enqueued  time.Time         `json:"enqueued"`
}

// MatchResult reports what StartMatchmaking did with a request.
type MatchResult struct {
	// Matched is set when the session already sits in GameID.
	Matched bool
	GameID  uint32
	// Queued is set when the request waits for partners.
	Queued bool
}

// StartMatchmaking places sid into a compatible public Lobby game if one
// exists. Otherwise the request joins the queue and a matching pass runs.
func (e *Engine) StartMatchmaking(sid uint32, criteria map[string]string) (MatchResult, error) {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, in := e.members[sid]; in {
		return MatchResult{}, ErrAlreadyInGame
	}
	if e.queuedLocked(sid) >= 0 {
		return MatchResult{}, ErrAlreadyQueued
	}

	if g := e.findOpenGameLocked(criteria); g != nil {
		if snap, err := e.joinLocked(g, sid, SetupMatched, &fx); err == nil {
			return MatchResult{Matched: true, GameID: snap.ID}, nil
		}
	}

	crit := copyAttrs(criteria)
	e.queue = append(e.queue, &request{sid: sid, criteria: crit, enqueued: e.now()})
	n := e.notifier
	fx.add(func() { n.MatchmakingQueued(sid, crit) })

	e.logger.Debug().
		Uint32("session_id", sid).
		Int("queue_len", len(e.queue)).
		Msg("matchmaking request queued")

	e.matchLocked(&fx)

	if m, in := e.members[sid]; in {
		return MatchResult{Matched: true, GameID: m.GameID}, nil
	}
	return MatchResult{Queued: true}, nil
}

// CancelMatchmaking withdraws sid's request. It reports whether a request
// was queued. A matching pass runs afterwards.
func (e *Engine) CancelMatchmaking(sid uint32) bool {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dequeueLocked(sid, &fx) {
		return false
	}
	e.matchLocked(&fx)
	return true
}

// ExpireMatchmaking drops requests that have waited at least the configured
// timeout and notifies their sessions. It returns the expired session ids.
func (e *Engine) ExpireMatchmaking(now time.Time) []uint32 {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []uint32
	kept := e.queue[:0]
	n := e.notifier
	for _, r := range e.queue {
		waited := now.Sub(r.enqueued)
		if waited < e.cfg.MatchmakingTimeout {
			kept = append(kept, r)
			continue
		}
		sid := r.sid
		expired = append(expired, sid)
		fx.add(func() { n.MatchmakingFailed(sid, waited) })
	}
	for i := len(kept); i < len(e.queue); i++ {
		e.queue[i] = nil
	}
	e.queue = kept

	if len(expired) > 0 {
		e.logger.Info().
			Int("expired", len(expired)).
			Int("queue_len", len(e.queue)).
			Msg("matchmaking requests timed out")
	}
	return expired
}

// Queue returns the pending requests in FIFO order.
func (e *Engine) Queue() []QueueEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]QueueEntry, len(e.queue))
	for i, r := range e.queue {
		out[i] = QueueEntry{SessionID: r.sid, Criteria: copyAttrs(r.criteria), Enqueued: r.enqueued}
	}
	return out
}

func (e *Engine) queuedLocked(sid uint32) int {
	for i, r := range e.queue {
		if r.sid == sid {
			return i
		}
	}
	return -1
}

func (e *Engine) dequeueLocked(sid uint32, fx *effects) bool {
	i := e.queuedLocked(sid)
	if i < 0 {
		return false
	}
	e.queue = append(e.queue[:i], e.queue[i+1:]...)
	n := e.notifier
	fx.add(func() { n.MatchmakingCancelled(sid) })
	return true
}

// findOpenGameLocked returns the oldest public Lobby game with a free seat
// whose attributes satisfy criteria.
func (e *Engine) findOpenGameLocked(criteria map[string]string) *instance {
	ids := make([]uint32, 0, len(e.games))
	for id := range e.games {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		g := e.games[id]
		g.mu.Lock()
		open := g.state == StateLobby &&
			len(g.members) < g.capacity &&
			g.attributes[AttrVisibility] == VisibilityPublic &&
			e.compatible(criteria, g.attributes)
		g.mu.Unlock()
		if open {
			return g
		}
	}
	return nil
}

// matchLocked runs matching passes until no group can be formed. Each group
// leaves the queue in the same critical section that creates its game.
func (e *Engine) matchLocked(fx *effects) int {
	created := 0
	for {
		group := e.findGroupLocked()
		if group == nil {
			return created
		}

		requests := make([]*request, len(group))
		for i, idx := range group {
			requests[i] = e.queue[idx]
		}
		e.removeQueuedLocked(group)

		attrs := make(map[string]string)
		for _, r := range requests {
			for k, v := range r.criteria {
				if _, set := attrs[k]; !set && v != MatchAny {
					attrs[k] = v
				}
			}
		}
		attrs[AttrVisibility] = VisibilityPublic

		g := e.newGameLocked(e.cfg.MatchCapacity, attrs, nil)
		e.seatLocked(g, requests[0].sid, SetupMatched, fx)
		for _, r := range requests[1:] {
			if _, err := e.joinLocked(g, r.sid, SetupMatched, fx); err != nil {
				e.logger.Error().Err(err).Uint32("session_id", r.sid).Msg("failed to seat matched player")
			}
		}

		now := e.now()
		for _, r := range requests {
			e.logger.Info().
				Uint32("session_id", r.sid).
				Uint32("game_id", g.id).
				Dur("waited", now.Sub(r.enqueued)).
				Msg("matchmaking matched")
		}
		created++
	}
}

// findGroupLocked returns queue indices of the earliest group of mutually
// compatible requests with at least MinMatchPlayers members.
func (e *Engine) findGroupLocked() []int {
	limit := e.cfg.MatchCapacity
	for i := range e.queue {
		group := []int{i}
		for j := i + 1; j < len(e.queue) && len(group) < limit; j++ {
			if e.fitsGroupLocked(group, e.queue[j]) {
				group = append(group, j)
			}
		}
		if len(group) >= e.cfg.MinMatchPlayers {
			return group
		}
	}
	return nil
}

func (e *Engine) fitsGroupLocked(group []int, r *request) bool {
	for _, idx := range group {
		if !e.compatible(e.queue[idx].criteria, r.criteria) {
			return false
		}
	}
	return true
}

// removeQueuedLocked removes the given ascending indices from the queue.
func (e *Engine) removeQueuedLocked(indices []int) {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	kept := make([]*request, 0, len(e.queue)-len(indices))
	for i, r := range e.queue {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	e.queue = kept
}
