package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/notify"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

type fakeAccounts struct {
	inventory session.Inventory
	tokenErr  error
}

var (
	_ session.Authenticator   = (*fakeAccounts)(nil)
	_ session.InventorySource = (*fakeAccounts)(nil)
	_ TokenIssuer             = (*fakeAccounts)(nil)
)

func (f *fakeAccounts) Authenticate(_ context.Context, cred session.Credential) (session.AccountID, error) {
	switch {
	case cred.Token == "tok-2":
		return 2, nil
	case cred.Password == "pw":
		return session.AccountID(len(cred.Email)), nil
	}
	return 0, session.ErrInvalidCredentials
}

func (f *fakeAccounts) Account(_ context.Context, id session.AccountID) (session.Account, error) {
	return session.Account{ID: id, Email: "p@x.io", Persona: "Player"}, nil
}

func (f *fakeAccounts) FetchInventory(context.Context, session.AccountID) (session.Inventory, error) {
	return f.inventory, nil
}

func (f *fakeAccounts) IssueToken(_ context.Context, id session.AccountID) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "signed", nil
}

type harness struct {
	t        *testing.T
	rt       *router.Router
	sessions *session.Manager
	games    *game.Engine
	accounts *fakeAccounts
	deps     *Deps
	corr     uint16
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	accounts := &fakeAccounts{inventory: session.Inventory{
		Items: []session.InventoryItem{
			{Key: "DLC_MP_PACK1", Category: "dlc", Quantity: 1, GrantedAt: time.Unix(1700000000, 0)},
		},
		Currency: map[string]int64{"credits": 250},
	}}
	engine := game.NewEngine(game.Config{DefaultCapacity: 4, MinMatchPlayers: 2})
	sessions := session.NewManager(session.Config{MaxAuthFailures: 2}, engine, accounts, nil)
	engine.SetNotifier(notify.NewDispatcher(sessions, nil, nil))
	engine.SetObserver(sessions)

	rt := router.New(nil, nil)
	deps := &Deps{
		Sessions:     sessions,
		Games:        engine,
		Inventory:    accounts,
		Tokens:       accounts,
		ServerName:   "blazer-test",
		Version:      "test",
		ClientConfig: map[string]map[string]string{"ME3_DATA": {"motd": "hello"}},
		now:          func() time.Time { return time.Unix(1800000000, 0) },
	}
	Register(rt, deps)
	return &harness{t: t, rt: rt, sessions: sessions, games: engine, accounts: accounts, deps: deps}
}

func (h *harness) call(s *session.Session, component, command uint16, body *tdf.Struct) (protocol.Packet, *tdf.Struct, bool) {
	h.t.Helper()
	h.corr++
	req := protocol.Packet{
		Component:   component,
		Command:     command,
		Type:        protocol.TypeRequest,
		Correlation: h.corr,
		Body:        tdf.MustEncodePayload(body),
	}
	resp, fatal := h.rt.Dispatch(context.Background(), s, req)
	require.NotNil(h.t, resp)
	require.Equal(h.t, h.corr, resp.Correlation)
	out, err := tdf.DecodePayload(resp.Body)
	require.NoError(h.t, err)
	return *resp, out, fatal
}

func (h *harness) login(email string) *session.Session {
	h.t.Helper()
	s := h.sessions.Open("192.0.2.1:5000", nil)
	p, _, _ := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("MAIL", email).Str("PASS", "pw").Build())
	require.Equal(h.t, protocol.ErrOK, p.Error)
	return s
}

func drain(s *session.Session) {
	for len(s.Outbound()) > 0 {
		<-s.Outbound()
	}
}

func TestRoutes_AuthRequirements(t *testing.T) {
	t.Parallel()

	open := map[string]bool{"login": true, "fetch_client_config": true, "ping": true, "pre_auth": true}
	for _, r := range Routes(&Deps{}) {
		assert.Equal(t, !open[r.Name], r.Auth, r.Name)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.sessions.Open("192.0.2.1:5000", nil)

	p, _, fatal := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("MAIL", "a@b.c").Str("PASS", "wrong").Build())
	assert.Equal(t, protocol.ErrInvalidCredentials, p.Error)
	assert.False(t, fatal)

	p, body, _ := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("MAIL", "a@b.c").Str("PASS", "pw").Build())
	require.Equal(t, protocol.ErrOK, p.Error)
	uid, err := body.GetUint("UID")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), uid)
	token, err := body.GetString("AUTH")
	require.NoError(t, err)
	assert.Equal(t, "signed", token)

	p, _, _ = h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("AUTH", "tok-2").Build())
	assert.Equal(t, protocol.ErrAlreadyAuthenticated, p.Error)
}

func TestLogin_TokenFailureStillLogsIn(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.accounts.tokenErr = errors.New("signer unavailable")
	s := h.sessions.Open("192.0.2.1:5000", nil)

	p, body, fatal := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("MAIL", "a@b.c").Str("PASS", "pw").Build())
	require.Equal(t, protocol.ErrOK, p.Error)
	assert.False(t, fatal)
	assert.True(t, s.Authenticated())
	assert.False(t, body.Has("AUTH"))
	uid, err := body.GetUint("UID")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), uid)
}

func TestLogin_RateLimitIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.sessions.Open("192.0.2.1:5000", nil)
	bad := tdf.NewBuilder().Str("MAIL", "a@b.c").Str("PASS", "nope").Build()

	p, _, fatal := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin, bad)
	assert.Equal(t, protocol.ErrInvalidCredentials, p.Error)
	assert.False(t, fatal)

	p, _, fatal = h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin, bad)
	assert.Equal(t, protocol.ErrAuthRateLimited, p.Error)
	assert.True(t, fatal)
}

func TestLogin_MissingPassword(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.sessions.Open("192.0.2.1:5000", nil)

	p, _, _ := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("MAIL", "a@b.c").Build())
	assert.Equal(t, protocol.ErrMalformedPayload, p.Error)
}

func TestListEntitlements(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.login("a@b.c")

	p, body, _ := h.call(s, protocol.ComponentAuthentication, protocol.CmdListEntitlements, nil)
	require.Equal(t, protocol.ErrOK, p.Error)

	ents, err := body.GetList("ENTS")
	require.NoError(t, err)
	require.Len(t, ents.Items, 1)
	item := ents.Items[0].(*tdf.Struct)
	key, err := item.GetString("KEY")
	require.NoError(t, err)
	assert.Equal(t, "DLC_MP_PACK1", key)

	curr, err := body.GetMap("CURR")
	require.NoError(t, err)
	require.Len(t, curr.Entries, 1)
	assert.Equal(t, tdf.String("credits"), curr.Entries[0].Key)
	assert.Equal(t, tdf.Int(250), curr.Entries[0].Value)
}

func TestGameFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	host := h.login("host@x.io")
	guest := h.login("guest@x.io")

	p, body, _ := h.call(host, protocol.ComponentGameManager, protocol.CmdCreateGame,
		tdf.NewBuilder().Uint("CAP", 2).StringMap("ATTR", map[string]string{"level": "1"}).Build())
	require.Equal(t, protocol.ErrOK, p.Error)
	gid, err := body.GetUint("GID")
	require.NoError(t, err)

	p, body, _ = h.call(guest, protocol.ComponentGameManager, protocol.CmdJoinGame,
		tdf.NewBuilder().Uint("GID", gid).Build())
	require.Equal(t, protocol.ErrOK, p.Error)
	slot, err := body.GetUint("SLOT")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot)

	third := h.login("third@x.io")
	p, _, _ = h.call(third, protocol.ComponentGameManager, protocol.CmdJoinGame,
		tdf.NewBuilder().Uint("GID", gid).Build())
	assert.Equal(t, protocol.ErrGameFull, p.Error)

	p, _, _ = h.call(guest, protocol.ComponentGameManager, protocol.CmdAdvanceGameState,
		tdf.NewBuilder().Uint("GID", gid).Uint("GSTA", uint64(game.StateStarting)).Build())
	assert.Equal(t, protocol.ErrNotHost, p.Error)

	p, _, _ = h.call(host, protocol.ComponentGameManager, protocol.CmdAdvanceGameState,
		tdf.NewBuilder().Uint("GID", gid).Uint("GSTA", uint64(game.StateInProgress)).Build())
	assert.Equal(t, protocol.ErrInvalidState, p.Error)

	p, _, _ = h.call(host, protocol.ComponentGameManager, protocol.CmdAdvanceGameState,
		tdf.NewBuilder().Uint("GID", gid).Uint("GSTA", uint64(game.StateStarting)).Build())
	assert.Equal(t, protocol.ErrOK, p.Error)

	drain(host)
	p, _, _ = h.call(guest, protocol.ComponentGameManager, protocol.CmdRemovePlayer,
		tdf.NewBuilder().Uint("GID", gid).Build())
	require.Equal(t, protocol.ErrOK, p.Error)

	pushed := <-host.Outbound()
	assert.Equal(t, protocol.NotifyPlayerRemoved, pushed.Command)

	_, inGame := guest.Membership()
	assert.False(t, inGame)

	p, _, _ = h.call(guest, protocol.ComponentGameManager, protocol.CmdRemovePlayer, nil)
	assert.Equal(t, protocol.ErrNotInGame, p.Error)

	p, _, _ = h.call(host, protocol.ComponentGameManager, protocol.CmdDestroyGame,
		tdf.NewBuilder().Uint("GID", gid).Build())
	assert.Equal(t, protocol.ErrOK, p.Error)
	_, ok := h.games.Get(uint32(gid))
	assert.False(t, ok)
}

func TestKickAndPlayerAttributes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	host := h.login("host@x.io")
	guest := h.login("guest@x.io")

	_, body, _ := h.call(host, protocol.ComponentGameManager, protocol.CmdCreateGame, nil)
	gid, err := body.GetUint("GID")
	require.NoError(t, err)
	h.call(guest, protocol.ComponentGameManager, protocol.CmdJoinGame, tdf.NewBuilder().Uint("GID", gid).Build())

	p, _, _ := h.call(guest, protocol.ComponentGameManager, protocol.CmdSetPlayerAttributes,
		tdf.NewBuilder().Uint("GID", gid).Uint("PID", uint64(host.ID())).StringMap("ATTR", map[string]string{"x": "1"}).Build())
	assert.Equal(t, protocol.ErrNotHost, p.Error)

	p, _, _ = h.call(guest, protocol.ComponentGameManager, protocol.CmdSetPlayerAttributes,
		tdf.NewBuilder().Uint("GID", gid).StringMap("ATTR", map[string]string{"class": "sentinel"}).Build())
	assert.Equal(t, protocol.ErrOK, p.Error)

	p, _, _ = h.call(guest, protocol.ComponentGameManager, protocol.CmdRemovePlayer,
		tdf.NewBuilder().Uint("GID", gid).Uint("PID", uint64(host.ID())).Build())
	assert.Equal(t, protocol.ErrNotHost, p.Error)

	p, _, _ = h.call(host, protocol.ComponentGameManager, protocol.CmdRemovePlayer,
		tdf.NewBuilder().Uint("GID", gid).Uint("PID", uint64(guest.ID())).Build())
	assert.Equal(t, protocol.ErrOK, p.Error)

	snap, ok := h.games.Get(uint32(gid))
	require.True(t, ok)
	assert.Equal(t, []uint32{host.ID()}, snap.MemberIDs())
}

func TestMatchmakingCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.login("a@x.io")
	b := h.login("b@x.io")
	crit := tdf.NewBuilder().StringMap("CRIT", map[string]string{"difficulty": "hard"}).Build()

	p, body, _ := h.call(a, protocol.ComponentGameManager, protocol.CmdStartMatchmaking, crit)
	require.Equal(t, protocol.ErrOK, p.Error)
	queued, err := body.GetBool("QUED")
	require.NoError(t, err)
	assert.True(t, queued)

	p, _, _ = h.call(a, protocol.ComponentGameManager, protocol.CmdStartMatchmaking, crit)
	assert.Equal(t, protocol.ErrAlreadyQueued, p.Error)

	p, body, _ = h.call(b, protocol.ComponentGameManager, protocol.CmdStartMatchmaking, crit)
	require.Equal(t, protocol.ErrOK, p.Error)
	matched, err := body.GetBool("MTCH")
	require.NoError(t, err)
	assert.True(t, matched)

	ma, ok := a.Membership()
	require.True(t, ok)
	mb, ok := b.Membership()
	require.True(t, ok)
	assert.Equal(t, ma.GameID, mb.GameID)

	c := h.login("c@x.io")
	h.call(c, protocol.ComponentGameManager, protocol.CmdStartMatchmaking,
		tdf.NewBuilder().StringMap("CRIT", map[string]string{"difficulty": "easy"}).Build())
	_, body, _ = h.call(c, protocol.ComponentGameManager, protocol.CmdCancelMatchmaking, nil)
	cancelled, err := body.GetBool("CANC")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestUtilAndUserSessions(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	anon := h.sessions.Open("192.0.2.9:1", nil)

	p, body, _ := h.call(anon, protocol.ComponentUtil, protocol.CmdPreAuth, nil)
	require.Equal(t, protocol.ErrOK, p.Error)
	inst, err := body.GetString("INST")
	require.NoError(t, err)
	assert.Equal(t, "blazer-test", inst)
	cids, err := body.GetList("CIDS")
	require.NoError(t, err)
	assert.Len(t, cids.Items, 4)

	_, body, _ = h.call(anon, protocol.ComponentUtil, protocol.CmdFetchClientConfig,
		tdf.NewBuilder().Str("CFID", "ME3_DATA").Build())
	conf, err := body.GetStringMap("CONF")
	require.NoError(t, err)
	assert.Equal(t, "hello", conf["motd"])

	_, body, _ = h.call(anon, protocol.ComponentUtil, protocol.CmdPing, nil)
	stim, err := body.GetUint("STIM")
	require.NoError(t, err)
	assert.Equal(t, uint64(1800000000), stim)

	p, _, _ = h.call(anon, protocol.ComponentUtil, protocol.CmdPostAuth, nil)
	assert.Equal(t, protocol.ErrNotAuthenticated, p.Error)

	s := h.login("p@x.io")
	p, _, _ = h.call(s, protocol.ComponentUserSessions, protocol.CmdUpdateNetworkInfo,
		tdf.NewBuilder().Str("INIP", "10.0.0.5:3659").Str("EXIP", "203.0.113.4:3659").Uint("NATT", 2).Build())
	require.Equal(t, protocol.ErrOK, p.Error)
	assert.Equal(t, uint32(2), s.NetworkInfo().NATType)
	assert.Equal(t, "203.0.113.4:3659", s.NetworkInfo().ExternalAddr)

	p, _, _ = h.call(s, protocol.ComponentUserSessions, protocol.CmdUpdateHardwareFlags,
		tdf.NewBuilder().Uint("HWFG", 3).Build())
	require.Equal(t, protocol.ErrOK, p.Error)
	assert.Equal(t, uint32(3), s.HardwareFlags())

	_, body, _ = h.call(s, protocol.ComponentUserSessions, protocol.CmdFetchProfile, &tdf.Struct{})
	name, err := body.GetString("DSNM")
	require.NoError(t, err)
	assert.Equal(t, "Player", name)
}

func TestLogoutKeepsSessionAuthenticated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	s := h.login("p@x.io")
	_, body, _ := h.call(s, protocol.ComponentGameManager, protocol.CmdCreateGame, nil)
	gid, err := body.GetUint("GID")
	require.NoError(t, err)

	p, _, _ := h.call(s, protocol.ComponentAuthentication, protocol.CmdLogout, nil)
	require.Equal(t, protocol.ErrOK, p.Error)
	_, ok := h.games.Get(uint32(gid))
	assert.False(t, ok)
	assert.True(t, s.Authenticated())

	p, _, _ = h.call(s, protocol.ComponentAuthentication, protocol.CmdLogin,
		tdf.NewBuilder().Str("MAIL", "p@x.io").Str("PASS", "pw").Build())
	assert.Equal(t, protocol.ErrAlreadyAuthenticated, p.Error)
}

// A session torn down between the router's auth check and the handler body
// must not be seated or queued.
func TestSeatingCommands_RejectClosedSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	host := h.login("host@x.io")
	snap, err := h.games.Create(host.ID(), 4, nil, nil)
	require.NoError(t, err)
	drain(host)

	joiner := h.login("joiner@x.io")
	require.True(t, h.sessions.Disconnect(joiner.ID(), "write error"))

	ctx := context.Background()
	_, err = h.deps.joinGame(ctx, &router.Request{
		Session: joiner,
		Body:    tdf.NewBuilder().Uint(notify.LabelGameID, uint64(snap.ID)).Build(),
	})
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	_, err = h.deps.createGame(ctx, &router.Request{Session: joiner, Body: tdf.NewBuilder().Build()})
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	_, err = h.deps.startMatchmaking(ctx, &router.Request{Session: joiner, Body: tdf.NewBuilder().Build()})
	assert.ErrorIs(t, err, session.ErrSessionClosed)

	got, ok := h.games.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, []uint32{host.ID()}, got.MemberIDs())
	assert.Empty(t, h.games.Queue())
	_, seated := h.games.MembershipOf(joiner.ID())
	assert.False(t, seated)
	assert.Len(t, host.Outbound(), 0, "host hears nothing about the closed session")
}
