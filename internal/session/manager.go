package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/protocol"
)

// Games is the slice of the game engine the manager needs for teardown.
type Games interface {
	MembershipOf(sid uint32) (game.Membership, bool)
	Leave(gameID, sid uint32) error
	RemoveSession(sid uint32, reason game.RemoveReason) (uint32, bool)
}

// Config holds session limits.
type Config struct {
	OutboundQueue   int
	MaxAuthFailures int
	FlushTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = 64
	}
	if c.MaxAuthFailures <= 0 {
		c.MaxAuthFailures = 5
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 2 * time.Second
	}
	return c
}

// Manager owns every live session.
type Manager struct {
	cfg    Config
	games  Games
	auth   Authenticator
	bus    *events.EventBus
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[uint32]*Session
	nextID   uint32
}

var _ game.MembershipObserver = (*Manager)(nil)

// NewManager creates a manager. bus may be nil.
func NewManager(cfg Config, games Games, auth Authenticator, bus *events.EventBus) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		games:    games,
		auth:     auth,
		bus:      bus,
		logger:   log.With().Str("component", "session_manager").Logger(),
		sessions: make(map[uint32]*Session),
	}
}

func (m *Manager) emit(t events.EventType, s *Session, p events.SessionPayload) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(context.Background(), events.Event{
		Type:    t,
		Source:  fmt.Sprintf("session:%d", s.id),
		Payload: p,
	})
}

// Open registers a new session for a freshly accepted connection. closer is
// closed once the session's outbound queue has been flushed at teardown.
func (m *Manager) Open(remote string, closer io.Closer) *Session {
	m.mu.Lock()
	for {
		m.nextID++
		if m.nextID == 0 {
			continue
		}
		if _, taken := m.sessions[m.nextID]; !taken {
			break
		}
	}
	s := newSession(m.nextID, remote, m.cfg.OutboundQueue, closer)
	m.sessions[s.id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	s.logger.Info().Int("sessions", total).Msg("session opened")
	m.emit(events.EventSessionOpened, s, events.SessionPayload{SessionID: s.id, Remote: remote})
	return s
}

// Get returns a live session.
func (m *Manager) Get(id uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Exists reports whether id is a live session.
func (m *Manager) Exists(id uint32) bool {
	_, ok := m.Get(id)
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// all copies the registry so callers never hold mu while touching sessions.
func (m *Manager) all() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Snapshot returns every live session ordered by id.
func (m *Manager) Snapshot() []Info {
	sessions := m.all()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountAuthenticated returns the number of logged-in sessions.
func (m *Manager) CountAuthenticated() int {
	n := 0
	for _, s := range m.all() {
		if s.Authenticated() {
			n++
		}
	}
	return n
}

// Authenticate logs s in. Each connection may authenticate once. Reaching
// MaxAuthFailures returns ErrAuthRateLimited, after which the caller should
// close the connection.
func (m *Manager) Authenticate(ctx context.Context, s *Session, cred Credential) (Account, error) {
	switch s.State() {
	case StateAuthenticated:
		return Account{}, ErrAlreadyAuthenticated
	case StateDisconnected:
		return Account{}, ErrSessionClosed
	}
	if int(s.authFailures.Load()) >= m.cfg.MaxAuthFailures {
		return Account{}, ErrAuthRateLimited
	}

	id, err := m.auth.Authenticate(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			failures := s.authFailures.Add(1)
			s.logger.Warn().
				Int32("failures", failures).
				Bool("token", cred.IsToken()).
				Msg("login rejected")
			if int(failures) >= m.cfg.MaxAuthFailures {
				return Account{}, ErrAuthRateLimited
			}
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, fmt.Errorf("failed to authenticate: %w", err)
	}

	account, err := m.auth.Account(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("failed to load account %d: %w", id, err)
	}

	if !s.state.CompareAndSwap(int32(StateUnauthenticated), int32(StateAuthenticated)) {
		if s.State() == StateAuthenticated {
			return Account{}, ErrAlreadyAuthenticated
		}
		return Account{}, ErrSessionClosed
	}
	s.account.Store(&account)
	s.logger.Info().
		Uint64("account_id", uint64(account.ID)).
		Str("persona", account.Persona).
		Msg("session authenticated")
	m.emit(events.EventSessionAuthenticated, s, events.SessionPayload{
		SessionID: s.id,
		AccountID: uint64(account.ID),
		Persona:   account.Persona,
		Remote:    s.remote,
	})
	return account, nil
}

// Leave removes s from its current game. Remaining members are notified
// before Leave returns.
func (m *Manager) Leave(s *Session) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	membership, ok := m.games.MembershipOf(s.id)
	if !ok {
		return 0, game.ErrNotInGame
	}
	if err := m.games.Leave(membership.GameID, s.id); err != nil {
		return 0, err
	}
	return membership.GameID, nil
}

// Seat runs fn, an engine call that may seat or queue s, under the
// session lock. teardown holds the same lock while it removes s from the
// engine, so a disconnected session is never seated.
func (m *Manager) Seat(s *Session, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateDisconnected {
		return ErrSessionClosed
	}
	return fn()
}

// Push queues a server push for sid. A session whose queue is full is
// disconnected, since a client that missed a membership change cannot
// recover without reconnecting.
func (m *Manager) Push(sid uint32, p protocol.Packet) error {
	s, ok := m.Get(sid)
	if !ok {
		return ErrSessionClosed
	}
	if s.Enqueue(p) {
		return nil
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	// Push may run inside another session's Seat, so teardown cannot take
	// s.mu synchronously here.
	go m.teardown(s, "outbound queue full")
	return ErrOutboundFull
}

// Logout leaves any game and drops any matchmaking request. The session
// stays authenticated.
func (m *Manager) Logout(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.games.RemoveSession(s.id, game.RemoveLeft)
}

// Disconnect tears a session down. It is safe to call concurrently and more
// than once; only the first call has any effect.
func (m *Manager) Disconnect(id uint32, reason string) bool {
	s, ok := m.Get(id)
	if !ok {
		return false
	}
	m.teardown(s, reason)
	return true
}

func (m *Manager) teardown(s *Session, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateDisconnected))
		gameID, left := m.games.RemoveSession(s.id, game.RemoveDisconnected)
		s.mu.Unlock()

		m.mu.Lock()
		delete(m.sessions, s.id)
		total := len(m.sessions)
		m.mu.Unlock()

		close(s.done)
		go s.closeAfterFlush(m.cfg.FlushTimeout)

		ev := s.logger.Info().
			Str("reason", reason).
			Dur("age", time.Since(s.openedAt)).
			Int("sessions", total)
		if left {
			ev = ev.Uint32("left_game", gameID)
		}
		ev.Msg("session closed")

		payload := events.SessionPayload{SessionID: s.id, Remote: s.remote, Reason: reason}
		if a, ok := s.Account(); ok {
			payload.AccountID = uint64(a.ID)
			payload.Persona = a.Persona
		}
		m.emit(events.EventSessionClosed, s, payload)
	})
}

// CleanIdle disconnects sessions with no inbound traffic for timeout, using
// the same teardown as Disconnect.
func (m *Manager) CleanIdle(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	cleaned := 0
	for _, s := range m.all() {
		if s.LastActivity().Before(cutoff) {
			m.teardown(s, "idle timeout")
			cleaned++
		}
	}
	if cleaned > 0 {
		m.logger.Warn().Int("cleaned", cleaned).Dur("timeout", timeout).Msg("closed idle sessions")
	}
	return cleaned
}

// CloseAll tears down every session.
func (m *Manager) CloseAll(reason string) {
	for _, s := range m.all() {
		m.teardown(s, reason)
	}
	m.logger.Info().Msg("all sessions closed")
}

// Attached mirrors a new game seat into the session.
func (m *Manager) Attached(sid uint32, membership game.Membership) {
	if s, ok := m.Get(sid); ok {
		s.setMembership(&membershipState{m: membership, in: true})
	}
}

// Detached clears the session's game seat.
func (m *Manager) Detached(sid uint32, gameID uint32, seq uint64) {
	if s, ok := m.Get(sid); ok {
		s.setMembership(&membershipState{m: game.Membership{Seq: seq}})
	}
}
