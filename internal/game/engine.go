package game

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds engine limits.
type Config struct {
	DefaultCapacity    int
	MaxCapacity        int
	MinMatchPlayers    int
	MatchCapacity      int
	MatchmakingTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultCapacity <= 0 {
		c.DefaultCapacity = 4
	}
	if c.MaxCapacity <= 0 {
		c.MaxCapacity = 16
	}
	if c.DefaultCapacity > c.MaxCapacity {
		c.DefaultCapacity = c.MaxCapacity
	}
	if c.MinMatchPlayers < 2 {
		c.MinMatchPlayers = 2
	}
	if c.MatchCapacity <= 0 {
		c.MatchCapacity = c.DefaultCapacity
	}
	if c.MatchCapacity > c.MaxCapacity {
		c.MatchCapacity = c.MaxCapacity
	}
	if c.MinMatchPlayers > c.MatchCapacity {
		c.MinMatchPlayers = c.MatchCapacity
	}
	if c.MatchmakingTimeout <= 0 {
		c.MatchmakingTimeout = time.Minute
	}
	return c
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCompatibility replaces the matchmaking compatibility predicate.
func WithCompatibility(fn CompatibleFunc) Option {
	return func(e *Engine) { e.compatible = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the game registry plus the matchmaking queue.
//
// Lock order is session, then Engine.mu, then instance.mu. Notifier and
// observer callbacks are collected while locked and run after Engine.mu is
// released.
type Engine struct {
	cfg        Config
	logger     zerolog.Logger
	compatible CompatibleFunc
	now        func() time.Time

	notifier Notifier
	observer MembershipObserver

	mu      sync.RWMutex
	games   map[uint32]*instance
	members map[uint32]Membership
	queue   []*request
	nextID  uint32
	seq     uint64
}

// NewEngine creates an engine with no notifier or observer attached.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		logger:     log.With().Str("component", "game_engine").Logger(),
		compatible: DefaultCompatible,
		now:        time.Now,
		notifier:   NopNotifier{},
		observer:   nopObserver{},
		games:      make(map[uint32]*instance),
		members:    make(map[uint32]Membership),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotifier attaches the notifier. Call before the engine is shared.
func (e *Engine) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
}

// SetObserver attaches the membership observer. Call before the engine is
// shared.
func (e *Engine) SetObserver(o MembershipObserver) {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

// Config returns the effective limits.
func (e *Engine) Config() Config {
	return e.cfg
}

// effects defers callbacks until every engine lock is released.
type effects []func()

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

func (fx *effects) run() {
	for _, f := range *fx {
		f()
	}
}

func (e *Engine) nextSeqLocked() uint64 {
	e.seq++
	return e.seq
}

func (e *Engine) clampCapacity(capacity int) int {
	if capacity <= 0 {
		return e.cfg.DefaultCapacity
	}
	if capacity > e.cfg.MaxCapacity {
		return e.cfg.MaxCapacity
	}
	return capacity
}

func (e *Engine) newGameLocked(capacity int, attrs map[string]string, settings []byte) *instance {
	for {
		e.nextID++
		if e.nextID == 0 {
			continue
		}
		if _, taken := e.games[e.nextID]; !taken {
			break
		}
	}
	now := e.now()
	g := &instance{
		id:         e.nextID,
		state:      StateLobby,
		capacity:   e.clampCapacity(capacity),
		attributes: copyAttrs(attrs),
		settings:   append([]byte(nil), settings...),
		createdAt:  now,
		updatedAt:  now,
	}
	if g.attributes == nil {
		g.attributes = make(map[string]string)
	}
	e.games[g.id] = g
	return g
}

// Create opens a new game in Lobby with host in slot 0.
func (e *Engine) Create(host uint32, capacity int, attrs map[string]string, settings []byte) (Snapshot, error) {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, in := e.members[host]; in {
		return Snapshot{}, ErrAlreadyInGame
	}
	if e.queuedLocked(host) >= 0 {
		return Snapshot{}, ErrAlreadyQueued
	}

	g := e.newGameLocked(capacity, attrs, settings)
	snap := e.seatLocked(g, host, SetupCreated, &fx)

	e.logger.Info().
		Uint32("game_id", g.id).
		Uint32("host", host).
		Int("capacity", g.capacity).
		Msg("game created")
	return snap, nil
}

// seatLocked adds sid to a fresh game as host.
func (e *Engine) seatLocked(g *instance, sid uint32, reason SetupReason, fx *effects) Snapshot {
	g.mu.Lock()
	m := g.addLocked(sid, e.now())
	snap := g.snapshotLocked()
	g.mu.Unlock()

	membership := Membership{GameID: g.id, Slot: m.Slot, Seq: e.nextSeqLocked()}
	e.members[sid] = membership

	n, o := e.notifier, e.observer
	fx.add(func() {
		o.Attached(sid, membership)
		n.GameSetup(snap, sid, reason)
	})
	return snap
}

// Join adds sid to a Lobby game that has a free seat.
func (e *Engine) Join(gameID, sid uint32) (Snapshot, error) {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return Snapshot{}, ErrGameNotFound
	}
	if _, in := e.members[sid]; in {
		return Snapshot{}, ErrAlreadyInGame
	}
	if e.queuedLocked(sid) >= 0 {
		return Snapshot{}, ErrAlreadyQueued
	}
	return e.joinLocked(g, sid, SetupJoined, &fx)
}

func (e *Engine) joinLocked(g *instance, sid uint32, reason SetupReason, fx *effects) (Snapshot, error) {
	g.mu.Lock()
	if g.state != StateLobby {
		g.mu.Unlock()
		return Snapshot{}, ErrInvalidState
	}
	if len(g.members) >= g.capacity {
		g.mu.Unlock()
		return Snapshot{}, ErrGameFull
	}
	m := g.addLocked(sid, e.now())
	snap := g.snapshotLocked()
	g.mu.Unlock()

	membership := Membership{GameID: g.id, Slot: m.Slot, Seq: e.nextSeqLocked()}
	e.members[sid] = membership

	others := make([]uint32, 0, len(snap.Members)-1)
	for _, member := range snap.Members {
		if member.SessionID != sid {
			others = append(others, member.SessionID)
		}
	}

	n, o := e.notifier, e.observer
	fx.add(func() {
		o.Attached(sid, membership)
		n.GameSetup(snap, sid, reason)
		if len(others) > 0 {
			n.PlayerJoining(snap, sid, others)
		}
	})

	e.logger.Debug().
		Uint32("game_id", g.id).
		Uint32("session_id", sid).
		Int("slot", m.Slot).
		Str("reason", reason.String()).
		Msg("player joined")
	return snap, nil
}

// Leave removes sid from gameID. Remaining members have been notified when
// Leave returns.
func (e *Engine) Leave(gameID, sid uint32) error {
	return e.remove(gameID, sid, RemoveLeft)
}

// Kick lets the host remove another member.
func (e *Engine) Kick(gameID, host, target uint32) error {
	if host == target {
		return e.remove(gameID, target, RemoveLeft)
	}

	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if err := e.checkHostLocked(g, host); err != nil {
		return err
	}
	return e.leaveLocked(g, target, RemoveKicked, &fx)
}

func (e *Engine) remove(gameID, sid uint32, reason RemoveReason) error {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	return e.leaveLocked(g, sid, reason, &fx)
}

func (e *Engine) leaveLocked(g *instance, sid uint32, reason RemoveReason, fx *effects) error {
	g.mu.Lock()
	i := g.indexLocked(sid)
	if i < 0 {
		g.mu.Unlock()
		return ErrNotInGame
	}
	previousHost := g.hostLocked()
	g.removeLocked(i, e.now())
	empty := len(g.members) == 0
	if empty {
		g.state = StateComplete
	}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	delete(e.members, sid)
	seq := e.nextSeqLocked()
	n, o := e.notifier, e.observer

	if empty {
		delete(e.games, g.id)
		fx.add(func() {
			o.Detached(sid, g.id, seq)
			n.GameRemoved(snap)
		})
		e.logger.Info().Uint32("game_id", g.id).Msg("last player left, game removed")
		return nil
	}

	remaining := snap.MemberIDs()
	migrated := previousHost == sid
	fx.add(func() {
		o.Detached(sid, g.id, seq)
		n.PlayerRemoved(snap, sid, reason, remaining)
		if migrated {
			n.HostMigrated(snap, sid)
		}
	})

	ev := e.logger.Debug().
		Uint32("game_id", g.id).
		Uint32("session_id", sid).
		Str("reason", reason.String())
	if migrated {
		ev = ev.Uint32("new_host", snap.Host())
	}
	ev.Msg("player left")
	return nil
}

func (e *Engine) checkHostLocked(g *instance, sid uint32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.indexLocked(sid) < 0 {
		return ErrNotInGame
	}
	if g.hostLocked() != sid {
		return ErrNotHost
	}
	return nil
}

// AdvanceState moves a game along its lifecycle. Only the host may do this.
// Advancing to Complete ends and removes the game.
func (e *Engine) AdvanceState(gameID, sid uint32, target State) error {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if err := e.checkHostLocked(g, sid); err != nil {
		return err
	}

	g.mu.Lock()
	from := g.state
	if !CanTransition(from, target) {
		g.mu.Unlock()
		return ErrInvalidState
	}
	if target == StateComplete {
		g.mu.Unlock()
		e.destroyLocked(g, &fx)
		return nil
	}
	g.state = target
	g.updatedAt = e.now()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	e.stateChangedLocked(snap, from, &fx)
	return nil
}

// Replay returns an in-progress game to Lobby so the same group can play
// again.
func (e *Engine) Replay(gameID, sid uint32) error {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if err := e.checkHostLocked(g, sid); err != nil {
		return err
	}

	g.mu.Lock()
	from := g.state
	if from != StateInProgress {
		g.mu.Unlock()
		return ErrInvalidState
	}
	g.state = StateLobby
	g.updatedAt = e.now()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	e.stateChangedLocked(snap, from, &fx)
	return nil
}

func (e *Engine) stateChangedLocked(snap Snapshot, from State, fx *effects) {
	n := e.notifier
	to := snap.MemberIDs()
	fx.add(func() { n.GameStateChanged(snap, from, to) })

	e.logger.Info().
		Uint32("game_id", snap.ID).
		Str("from", from.String()).
		Str("to", snap.State.String()).
		Msg("game state changed")
}

// Destroy ends a game on behalf of its host.
func (e *Engine) Destroy(gameID, sid uint32) error {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if err := e.checkHostLocked(g, sid); err != nil {
		return err
	}
	e.destroyLocked(g, &fx)
	return nil
}

func (e *Engine) destroyLocked(g *instance, fx *effects) {
	g.mu.Lock()
	from := g.state
	g.state = StateComplete
	g.updatedAt = e.now()
	snap := g.snapshotLocked()
	g.members = nil
	g.mu.Unlock()

	delete(e.games, g.id)
	ids := snap.MemberIDs()
	seqs := make([]uint64, len(ids))
	for i, sid := range ids {
		delete(e.members, sid)
		seqs[i] = e.nextSeqLocked()
	}

	n, o := e.notifier, e.observer
	fx.add(func() {
		for i, sid := range ids {
			o.Detached(sid, snap.ID, seqs[i])
		}
		n.GameStateChanged(snap, from, ids)
		n.GameRemoved(snap)
	})

	e.logger.Info().
		Uint32("game_id", g.id).
		Int("players", len(ids)).
		Msg("game destroyed")
}

// SetAttributes merges changes into the game attributes. Host only. An
// empty value removes the key.
func (e *Engine) SetAttributes(gameID, sid uint32, changes map[string]string) error {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	if err := e.checkHostLocked(g, sid); err != nil {
		return err
	}

	g.mu.Lock()
	g.attributes = mergeAttrs(g.attributes, changes)
	g.updatedAt = e.now()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	n := e.notifier
	changed := copyAttrs(changes)
	to := snap.MemberIDs()
	fx.add(func() { n.GameAttributesChanged(snap, changed, to) })
	return nil
}

// SetPlayerAttributes merges changes into target's member attributes. A
// member may change its own attributes; the host may change anyone's.
func (e *Engine) SetPlayerAttributes(gameID, sid, target uint32, changes map[string]string) error {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.games[gameID]
	if !ok {
		return ErrGameNotFound
	}

	g.mu.Lock()
	if g.indexLocked(sid) < 0 {
		g.mu.Unlock()
		return ErrNotInGame
	}
	if sid != target && g.hostLocked() != sid {
		g.mu.Unlock()
		return ErrNotHost
	}
	i := g.indexLocked(target)
	if i < 0 {
		g.mu.Unlock()
		return ErrNotInGame
	}
	g.members[i].Attributes = mergeAttrs(g.members[i].Attributes, changes)
	g.updatedAt = e.now()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	n := e.notifier
	changed := copyAttrs(changes)
	to := snap.MemberIDs()
	fx.add(func() { n.PlayerAttributesChanged(snap, target, changed, to) })
	return nil
}

// RemoveSession drops every trace of sid: its game seat and its matchmaking
// request. It returns the game it left, if any.
func (e *Engine) RemoveSession(sid uint32, reason RemoveReason) (uint32, bool) {
	var fx effects
	defer fx.run()

	e.mu.Lock()
	defer e.mu.Unlock()

	var left uint32
	var wasMember bool
	if m, in := e.members[sid]; in {
		if g, ok := e.games[m.GameID]; ok && e.leaveLocked(g, sid, reason, &fx) == nil {
			left, wasMember = m.GameID, true
		}
	}
	if e.dequeueLocked(sid, &fx) {
		e.matchLocked(&fx)
	}
	return left, wasMember
}

// MembershipOf returns the seat sid occupies.
func (e *Engine) MembershipOf(sid uint32) (Membership, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.members[sid]
	return m, ok
}

// Get returns a snapshot of one game.
func (e *Engine) Get(gameID uint32) (Snapshot, bool) {
	e.mu.RLock()
	g, ok := e.games[gameID]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return g.snapshot(), true
}

// List returns a summary of every active game ordered by id.
func (e *Engine) List() []Summary {
	e.mu.RLock()
	games := make([]*instance, 0, len(e.games))
	for _, g := range e.games {
		games = append(games, g)
	}
	e.mu.RUnlock()

	out := make([]Summary, 0, len(games))
	for _, g := range games {
		out = append(out, g.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats are engine totals for status surfaces.
type Stats struct {
	Games   int `json:"games"`
	Players int `json:"players"`
	Queued  int `json:"queued"`
}

// Stats returns current totals.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Games: len(e.games), Players: len(e.members), Queued: len(e.queue)}
}

// PurgeOrphans removes members and queued requests whose session is gone.
// It returns how many entries were dropped.
func (e *Engine) PurgeOrphans(alive func(sid uint32) bool) int {
	e.mu.RLock()
	candidates := make([]uint32, 0, len(e.members)+len(e.queue))
	for sid := range e.members {
		candidates = append(candidates, sid)
	}
	for _, r := range e.queue {
		candidates = append(candidates, r.sid)
	}
	e.mu.RUnlock()

	dropped := 0
	for _, sid := range candidates {
		if alive(sid) {
			continue
		}
		if _, left := e.RemoveSession(sid, RemoveDisconnected); left {
			dropped++
			e.logger.Warn().Uint32("session_id", sid).Msg("purged orphaned game member")
		}
	}
	return dropped
}
