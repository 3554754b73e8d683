// Package session tracks one Session per live connection: its auth state,
// its game membership mirror and its outbound packet queue.
package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/protocol"
)

// State is the authentication stage of a session.
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes State as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// NetworkInfo is what the client reports about its own connectivity.
type NetworkInfo struct {
	InternalAddr string `json:"internal_addr,omitempty"`
	ExternalAddr string `json:"external_addr,omitempty"`
	NATType      uint32 `json:"nat_type"`
	Locale       string `json:"locale,omitempty"`
}

type membershipState struct {
	m  game.Membership
	in bool
}

// Session is one live connection. Fields that other goroutines read are
// atomic; mu serializes leave and teardown for this session.
type Session struct {
	id       uint32
	traceID  string
	remote   string
	openedAt time.Time
	logger   zerolog.Logger

	mu sync.Mutex

	state        atomic.Int32
	account      atomic.Pointer[Account]
	membership   atomic.Pointer[membershipState]
	lastActivity atomic.Int64
	authFailures atomic.Int32
	network      atomic.Pointer[NetworkInfo]
	hwFlags      atomic.Uint32
	dropped      atomic.Uint64

	out     chan protocol.Packet
	done    chan struct{}
	flushed chan struct{}
	closer  io.Closer

	closeOnce sync.Once
	flushOnce sync.Once
}

func newSession(id uint32, remote string, queueSize int, closer io.Closer) *Session {
	traceID := uuid.NewString()
	now := time.Now()
	s := &Session{
		id:       id,
		traceID:  traceID,
		remote:   remote,
		openedAt: now,
		logger: log.With().
			Str("component", "session").
			Uint32("session_id", id).
			Str("conn_id", traceID).
			Str("remote", remote).
			Logger(),
		out:     make(chan protocol.Packet, queueSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		closer:  closer,
	}
	s.lastActivity.Store(now.UnixNano())
	s.membership.Store(&membershipState{})
	return s
}

// ID returns the session id.
func (s *Session) ID() uint32 { return s.id }

// TraceID returns the per-connection uuid used in logs and telemetry.
func (s *Session) TraceID() string { return s.traceID }

// Remote returns the peer address.
func (s *Session) Remote() string { return s.remote }

// Logger returns the session's child logger.
func (s *Session) Logger() *zerolog.Logger { return &s.logger }

// State returns the auth state.
func (s *Session) State() State { return State(s.state.Load()) }

// Authenticated reports whether login has succeeded.
func (s *Session) Authenticated() bool { return s.State() == StateAuthenticated }

// Account returns the logged-in account.
func (s *Session) Account() (Account, bool) {
	a := s.account.Load()
	if a == nil {
		return Account{}, false
	}
	return *a, true
}

// Membership returns the game seat last reported by the engine.
func (s *Session) Membership() (game.Membership, bool) {
	st := s.membership.Load()
	return st.m, st.in
}

// setMembership stores next unless a newer update has already landed.
func (s *Session) setMembership(next *membershipState) {
	for {
		cur := s.membership.Load()
		if cur.m.Seq >= next.m.Seq {
			return
		}
		if s.membership.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Touch records traffic for idle detection.
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last inbound packet.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// SetNetworkInfo replaces the reported network info.
func (s *Session) SetNetworkInfo(info NetworkInfo) {
	s.network.Store(&info)
}

// NetworkInfo returns the reported network info.
func (s *Session) NetworkInfo() NetworkInfo {
	if n := s.network.Load(); n != nil {
		return *n
	}
	return NetworkInfo{}
}

// SetHardwareFlags replaces the reported hardware flags.
func (s *Session) SetHardwareFlags(flags uint32) { s.hwFlags.Store(flags) }

// HardwareFlags returns the reported hardware flags.
func (s *Session) HardwareFlags() uint32 { return s.hwFlags.Load() }

// Outbound is drained by the connection writer.
func (s *Session) Outbound() <-chan protocol.Packet { return s.out }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Dropped returns how many pushes were discarded on a full queue.
func (s *Session) Dropped() uint64 { return s.dropped.Load() }

// Enqueue queues a push without blocking. It reports false when the session
// is closed or its queue is full.
func (s *Session) Enqueue(p protocol.Packet) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.out <- p:
		return true
	default:
		s.dropped.Add(1)
		s.logger.Warn().
			Str("command", protocol.CommandName(p.Component, p.Command, p.Type == protocol.TypeNotification)).
			Int("queue_len", len(s.out)).
			Msg("outbound queue full, dropping packet")
		return false
	}
}

// Send queues a response, waiting for room until ctx ends or the session
// closes.
func (s *Session) Send(ctx context.Context, p protocol.Packet) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.out <- p:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkFlushed is called by the writer once it has drained the queue after
// Done. It lets teardown close the transport.
func (s *Session) MarkFlushed() {
	s.flushOnce.Do(func() { close(s.flushed) })
}

// closeAfterFlush closes the transport once the writer has drained, or
// after timeout.
func (s *Session) closeAfterFlush(timeout time.Duration) {
	if s.closer == nil {
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.flushed:
	case <-t.C:
		s.logger.Debug().Msg("flush timed out, closing transport")
	}
	if err := s.closer.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("transport close")
	}
}

// Info is a read-only view for status surfaces.
type Info struct {
	ID            uint32      `json:"id"`
	TraceID       string      `json:"trace_id"`
	Remote        string      `json:"remote"`
	State         State       `json:"state"`
	AccountID     AccountID   `json:"account_id,omitempty"`
	Persona       string      `json:"persona,omitempty"`
	GameID        uint32      `json:"game_id,omitempty"`
	InGame        bool        `json:"in_game"`
	OpenedAt      time.Time   `json:"opened_at"`
	LastActivity  time.Time   `json:"last_activity"`
	QueueLen      int         `json:"queue_len"`
	Dropped       uint64      `json:"dropped"`
	Network       NetworkInfo `json:"network"`
	HardwareFlags uint32      `json:"hardware_flags"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	info := Info{
		ID:            s.id,
		TraceID:       s.traceID,
		Remote:        s.remote,
		State:         s.State(),
		OpenedAt:      s.openedAt,
		LastActivity:  s.LastActivity(),
		QueueLen:      len(s.out),
		Dropped:       s.Dropped(),
		Network:       s.NetworkInfo(),
		HardwareFlags: s.HardwareFlags(),
	}
	if a, ok := s.Account(); ok {
		info.AccountID = a.ID
		info.Persona = a.Persona
	}
	if m, ok := s.Membership(); ok {
		info.GameID = m.GameID
		info.InGame = true
	}
	return info
}
