package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCompatible(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		a, b map[string]string
		want bool
	}{
		{name: "both empty", want: true},
		{name: "equal", a: map[string]string{"difficulty": "hard"}, b: map[string]string{"difficulty": "hard"}, want: true},
		{name: "different", a: map[string]string{"difficulty": "hard"}, b: map[string]string{"difficulty": "easy"}, want: false},
		{name: "match any left", a: map[string]string{"difficulty": MatchAny}, b: map[string]string{"difficulty": "easy"}, want: true},
		{name: "match any right", a: map[string]string{"level": "2"}, b: map[string]string{"level": MatchAny}, want: true},
		{name: "missing key", a: map[string]string{"enemytype": "robots"}, b: map[string]string{"level": "2"}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultCompatible(tc.a, tc.b))
			assert.Equal(t, tc.want, DefaultCompatible(tc.b, tc.a))
		})
	}
}

func TestMatchmaking_PairsCompatibleRequests(t *testing.T) {
	t.Parallel()

	e, rec := newTestEngine(t, Config{DefaultCapacity: 4, MinMatchPlayers: 2})

	res, err := e.StartMatchmaking(1, map[string]string{"difficulty": "hard"})
	require.NoError(t, err)
	assert.True(t, res.Queued)

	res, err = e.StartMatchmaking(2, map[string]string{"difficulty": "easy"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Len(t, e.Queue(), 2)

	res, err = e.StartMatchmaking(3, map[string]string{"difficulty": "hard", "level": "4"})
	require.NoError(t, err)
	require.True(t, res.Matched)

	snap, ok := e.Get(res.GameID)
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 3}, snap.MemberIDs())
	assert.Equal(t, "hard", snap.Attributes["difficulty"])
	assert.Equal(t, VisibilityPublic, snap.Attributes[AttrVisibility])

	queue := e.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, uint32(2), queue[0].SessionID)

	setups := rec.of("setup")
	require.Len(t, setups, 2)
	for _, s := range setups {
		assert.Equal(t, "matched", s.reason)
	}

	_, err = e.StartMatchmaking(1, nil)
	assert.ErrorIs(t, err, ErrAlreadyInGame)
	_, err = e.StartMatchmaking(2, nil)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestMatchmaking_JoinsOpenPublicGame(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, Config{})

	private, err := e.Create(10, 4, map[string]string{"level": "2"}, nil)
	require.NoError(t, err)
	public, err := e.Create(11, 4, map[string]string{"level": "2", AttrVisibility: VisibilityPublic}, nil)
	require.NoError(t, err)

	res, err := e.StartMatchmaking(1, map[string]string{"level": "2"})
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, public.ID, res.GameID)

	res, err = e.StartMatchmaking(2, map[string]string{"level": "5"})
	require.NoError(t, err)
	assert.True(t, res.Queued)

	snap, _ := e.Get(private.ID)
	assert.Len(t, snap.Members, 1)
}

func TestMatchmaking_GroupUpToCapacity(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, Config{DefaultCapacity: 3, MinMatchPlayers: 3})

	for sid := uint32(1); sid <= 2; sid++ {
		res, err := e.StartMatchmaking(sid, nil)
		require.NoError(t, err)
		assert.True(t, res.Queued)
	}

	res, err := e.StartMatchmaking(3, nil)
	require.NoError(t, err)
	require.True(t, res.Matched)

	snap, _ := e.Get(res.GameID)
	assert.Equal(t, []uint32{1, 2, 3}, snap.MemberIDs())
	assert.Empty(t, e.Queue())
}

func TestMatchmaking_CancelAndExpire(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	e, rec := newTestEngine(t, Config{MatchmakingTimeout: 30 * time.Second}, WithClock(func() time.Time { return now }))

	_, err := e.StartMatchmaking(1, map[string]string{"difficulty": "hard"})
	require.NoError(t, err)

	now = start.Add(20 * time.Second)
	_, err = e.StartMatchmaking(2, map[string]string{"difficulty": "easy"})
	require.NoError(t, err)
	_, err = e.StartMatchmaking(3, map[string]string{"difficulty": "nightmare"})
	require.NoError(t, err)

	assert.True(t, e.CancelMatchmaking(3))
	assert.False(t, e.CancelMatchmaking(3))
	assert.Len(t, rec.of("cancelled"), 1)

	expired := e.ExpireMatchmaking(start.Add(29 * time.Second))
	assert.Empty(t, expired)

	expired = e.ExpireMatchmaking(start.Add(30 * time.Second))
	assert.Equal(t, []uint32{1}, expired)

	failed := rec.of("mm_failed")
	require.Len(t, failed, 1)
	assert.Equal(t, uint32(1), failed[0].sid)

	queue := e.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, uint32(2), queue[0].SessionID)
}

func TestMatchmaking_CustomPredicate(t *testing.T) {
	t.Parallel()

	never := func(a, b map[string]string) bool { return false }
	e, _ := newTestEngine(t, Config{}, WithCompatibility(never))

	for sid := uint32(1); sid <= 3; sid++ {
		res, err := e.StartMatchmaking(sid, nil)
		require.NoError(t, err)
		assert.True(t, res.Queued)
	}
	assert.Len(t, e.Queue(), 3)
}

func TestMatchmaking_DisconnectLeavesQueue(t *testing.T) {
	t.Parallel()

	e, rec := newTestEngine(t, Config{})
	_, err := e.StartMatchmaking(1, nil)
	require.NoError(t, err)

	_, inGame := e.RemoveSession(1, RemoveDisconnected)
	assert.False(t, inGame)
	assert.Empty(t, e.Queue())
	assert.Len(t, rec.of("cancelled"), 1)
}
