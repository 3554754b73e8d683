package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

type fixture struct {
	engine   *game.Engine
	sessions *session.Manager
	bus      *events.EventBus
}

func newFixture(t *testing.T, queue int) *fixture {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	engine := game.NewEngine(game.Config{DefaultCapacity: 4, MinMatchPlayers: 2})
	sessions := session.NewManager(session.Config{OutboundQueue: queue}, engine, nil, nil)
	engine.SetNotifier(NewDispatcher(sessions, bus, nil))
	engine.SetObserver(sessions)
	return &fixture{engine: engine, sessions: sessions, bus: bus}
}

// next pops one queued packet or fails.
func next(t *testing.T, s *session.Session) (protocol.Packet, *tdf.Struct) {
	t.Helper()
	select {
	case p := <-s.Outbound():
		body, err := tdf.DecodePayload(p.Body)
		require.NoError(t, err)
		return p, body
	default:
		t.Fatalf("no packet queued for session %d", s.ID())
		return protocol.Packet{}, nil
	}
}

func assertEmpty(t *testing.T, s *session.Session) {
	t.Helper()
	assert.Len(t, s.Outbound(), 0, "session %d", s.ID())
}

func TestDispatcher_JoinAndLeave(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 16)
	host := f.sessions.Open("10.0.0.1:1", nil)
	guest := f.sessions.Open("10.0.0.2:1", nil)

	snap, err := f.engine.Create(host.ID(), 4, map[string]string{"level": "2"}, nil)
	require.NoError(t, err)

	p, body := next(t, host)
	assert.Equal(t, protocol.TypeNotification, p.Type)
	assert.Equal(t, protocol.NotifyGameSetup, p.Command)
	assert.Equal(t, uint16(0), p.Correlation)
	gameBody, err := body.GetStruct(LabelGame)
	require.NoError(t, err)
	gid, err := gameBody.GetUint(LabelGameID)
	require.NoError(t, err)
	assert.Equal(t, uint64(snap.ID), gid)
	attrs, err := gameBody.GetStringMap(LabelAttributes)
	require.NoError(t, err)
	assert.Equal(t, "2", attrs["level"])

	_, err = f.engine.Join(snap.ID, guest.ID())
	require.NoError(t, err)

	p, body = next(t, guest)
	assert.Equal(t, protocol.NotifyGameSetup, p.Command)
	slot, err := body.GetUint(LabelSlot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot)

	p, body = next(t, host)
	assert.Equal(t, protocol.NotifyPlayerJoining, p.Command)
	pdat, err := body.GetStruct("PDAT")
	require.NoError(t, err)
	pid, err := pdat.GetUint(LabelPlayerID)
	require.NoError(t, err)
	assert.Equal(t, uint64(guest.ID()), pid)

	_, err = f.sessions.Leave(host)
	require.NoError(t, err)

	p, body = next(t, guest)
	assert.Equal(t, protocol.NotifyPlayerRemoved, p.Command)
	removed, err := body.GetUint(LabelPlayerID)
	require.NoError(t, err)
	assert.Equal(t, uint64(host.ID()), removed)
	newHost, err := body.GetUint(LabelHost)
	require.NoError(t, err)
	assert.Equal(t, uint64(guest.ID()), newHost)

	assertEmpty(t, host)
	assertEmpty(t, guest)
}

func TestDispatcher_DisconnectNotifiesRemainingOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 16)
	a := f.sessions.Open("10.0.0.1:1", nil)
	b := f.sessions.Open("10.0.0.2:1", nil)
	c := f.sessions.Open("10.0.0.3:1", nil)

	snap, err := f.engine.Create(a.ID(), 4, nil, nil)
	require.NoError(t, err)
	for _, s := range []*session.Session{b, c} {
		_, err = f.engine.Join(snap.ID, s.ID())
		require.NoError(t, err)
	}
	for _, s := range []*session.Session{a, b, c} {
		for len(s.Outbound()) > 0 {
			<-s.Outbound()
		}
	}

	f.sessions.Disconnect(c.ID(), "reset")
	f.sessions.Disconnect(c.ID(), "reset")

	for _, s := range []*session.Session{a, b} {
		p, body := next(t, s)
		assert.Equal(t, protocol.NotifyPlayerRemoved, p.Command)
		reason, err := body.GetUint(LabelReason)
		require.NoError(t, err)
		assert.Equal(t, uint64(game.RemoveDisconnected), reason)
		assertEmpty(t, s)
	}
}

func TestDispatcher_StateAndAttributes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 16)
	host := f.sessions.Open("10.0.0.1:1", nil)
	snap, err := f.engine.Create(host.ID(), 2, nil, nil)
	require.NoError(t, err)
	next(t, host)

	require.NoError(t, f.engine.AdvanceState(snap.ID, host.ID(), game.StateStarting))
	p, body := next(t, host)
	assert.Equal(t, protocol.NotifyGameStateChange, p.Command)
	st, err := body.GetUint(LabelGameState)
	require.NoError(t, err)
	assert.Equal(t, uint64(game.StateStarting), st)

	require.NoError(t, f.engine.SetAttributes(snap.ID, host.ID(), map[string]string{"difficulty": "hard"}))
	p, body = next(t, host)
	assert.Equal(t, protocol.NotifyGameAttribChange, p.Command)
	changed, err := body.GetStringMap(LabelAttributes)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"difficulty": "hard"}, changed)

	require.NoError(t, f.engine.SetPlayerAttributes(snap.ID, host.ID(), host.ID(), map[string]string{"class": "engineer"}))
	p, _ = next(t, host)
	assert.Equal(t, protocol.NotifyPlayerAttribChange, p.Command)
}

func TestDispatcher_MatchmakingFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 16)
	s := f.sessions.Open("10.0.0.1:1", nil)

	failed := make(chan events.Event, 1)
	f.bus.Subscribe(events.EventMatchmakingFailed, "test", func(_ context.Context, e events.Event) error {
		failed <- e
		return nil
	})

	_, err := f.engine.StartMatchmaking(s.ID(), nil)
	require.NoError(t, err)
	expired := f.engine.ExpireMatchmaking(time.Now().Add(time.Hour))
	require.Equal(t, []uint32{s.ID()}, expired)

	p, body := next(t, s)
	assert.Equal(t, protocol.NotifyMatchmakingFailed, p.Command)
	usid, err := body.GetUint("USID")
	require.NoError(t, err)
	assert.Equal(t, uint64(s.ID()), usid)

	select {
	case e := <-failed:
		payload, ok := e.Payload.(events.MatchmakingPayload)
		require.True(t, ok)
		assert.Equal(t, s.ID(), payload.SessionID)
		assert.Equal(t, "timeout", payload.Reason)
	case <-time.After(time.Second):
		t.Fatal("matchmaking_failed event not published")
	}
}

func TestDispatcher_FullQueueDisconnects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	host := f.sessions.Open("10.0.0.1:1", nil)
	snap, err := f.engine.Create(host.ID(), 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, host.Outbound(), 1, "game setup fills the queue")

	require.NoError(t, f.engine.SetAttributes(snap.ID, host.ID(), map[string]string{"a": "1"}))
	assert.Equal(t, uint64(1), host.Dropped())

	assert.Eventually(t, func() bool {
		return !f.sessions.Exists(host.ID())
	}, time.Second, 5*time.Millisecond, "slow session is disconnected")

	_, ok := f.engine.Get(snap.ID)
	assert.False(t, ok, "the host's game goes with it")
	select {
	case <-host.Done():
	case <-time.After(time.Second):
		t.Fatal("session not torn down")
	}
}
