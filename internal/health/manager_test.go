package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/blazer/internal/config"
	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/metrics"
)

type fakeSessions struct {
	mu       sync.Mutex
	alive    map[uint32]bool
	cleaned  []time.Duration
	authed   int
	toExpire int
}

func (f *fakeSessions) CleanIdle(timeout time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, timeout)
	return f.toExpire
}

func (f *fakeSessions) Exists(id uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[id]
}

func (f *fakeSessions) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alive)
}

func (f *fakeSessions) CountAuthenticated() int { return f.authed }

func newTestManager(sessions Sessions, games Games, bus *events.EventBus, m *metrics.Metrics) *Manager {
	mgr := NewManager(config.TimerConfig{}, time.Minute, sessions, games, bus, m)
	mgr.sample = func() (float64, float64) { return 12.5, 40 }
	return mgr
}

func TestSweepIdle_UsesConfiguredTimeout(t *testing.T) {
	t.Parallel()

	s := &fakeSessions{toExpire: 2}
	mgr := newTestManager(s, game.NewEngine(game.Config{}), nil, nil)

	mgr.sweepIdle(context.Background())
	assert.Equal(t, []time.Duration{time.Minute}, s.cleaned)

	mgr.idleTimeout = 0
	mgr.sweepIdle(context.Background())
	assert.Len(t, s.cleaned, 1, "a zero timeout disables the sweep")
}

func TestExpireMatchmaking_UsesClock(t *testing.T) {
	t.Parallel()

	engine := game.NewEngine(game.Config{MinMatchPlayers: 2, MatchmakingTimeout: time.Minute})
	_, err := engine.StartMatchmaking(1, nil)
	require.NoError(t, err)

	mgr := newTestManager(&fakeSessions{}, engine, nil, nil)

	mgr.expireMatchmaking(context.Background())
	assert.Len(t, engine.Queue(), 1)

	mgr.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	mgr.expireMatchmaking(context.Background())
	assert.Empty(t, engine.Queue())
}

func TestPurgeOrphans_DropsDeadSessions(t *testing.T) {
	t.Parallel()

	engine := game.NewEngine(game.Config{})
	snap, err := engine.Create(1, 4, nil, nil)
	require.NoError(t, err)
	_, err = engine.Join(snap.ID, 2)
	require.NoError(t, err)

	s := &fakeSessions{alive: map[uint32]bool{1: true}}
	mgr := newTestManager(s, engine, nil, nil)
	mgr.purgeOrphans(context.Background())

	_, ok := engine.MembershipOf(2)
	assert.False(t, ok)
	_, ok = engine.MembershipOf(1)
	assert.True(t, ok)
}

func TestHeartbeat_PublishesTotals(t *testing.T) {
	t.Parallel()

	bus := events.NewEventBus()
	defer bus.Stop()
	got := make(chan events.HeartbeatPayload, 1)
	bus.Subscribe(events.EventHeartbeat, "test", func(_ context.Context, e events.Event) error {
		got <- e.Payload.(events.HeartbeatPayload)
		return nil
	})

	engine := game.NewEngine(game.Config{})
	_, err := engine.Create(1, 4, nil, nil)
	require.NoError(t, err)

	m := metrics.New()
	s := &fakeSessions{alive: map[uint32]bool{1: true, 2: true}, authed: 1}
	mgr := newTestManager(s, engine, bus, m)
	mgr.heartbeat(context.Background())

	select {
	case p := <-got:
		assert.Equal(t, 2, p.Sessions)
		assert.Equal(t, 1, p.Authenticated)
		assert.Equal(t, 1, p.Games)
		assert.Equal(t, 12.5, p.CPUPercent)
		assert.Equal(t, 40.0, p.MemUsedPercent)
	case <-time.After(time.Second):
		t.Fatal("heartbeat not published")
	}

	count, err := testutil.GatherAndCount(m.Registry, "blazer_games")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStart_StopsOnCancel(t *testing.T) {
	t.Parallel()

	s := &fakeSessions{}
	mgr := NewManager(config.TimerConfig{IdleSweepInterval: 1}, time.Minute, s, game.NewEngine(game.Config{}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}
