package network

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

type denyAll struct{}

func (denyAll) Authenticate(context.Context, session.Credential) (session.AccountID, error) {
	return 0, session.ErrInvalidCredentials
}

func (denyAll) Account(context.Context, session.AccountID) (session.Account, error) {
	return session.Account{}, errors.New("no accounts")
}

type testServer struct {
	sessions *session.Manager
	router   *router.Router
	client   net.Conn
	done     chan struct{}
	cancel   context.CancelFunc
}

func startServer(t *testing.T, cfg ConnConfig) *testServer {
	t.Helper()
	engine := game.NewEngine(game.Config{})
	sessions := session.NewManager(session.Config{MaxAuthFailures: 1, FlushTimeout: time.Second}, engine, denyAll{}, nil)

	rt := router.New(nil, nil)
	rt.Handle(router.Route{
		Component: protocol.ComponentUserSessions,
		Command:   protocol.CmdFetchProfile,
		Auth:      true,
		Handler: func(context.Context, *router.Request) (*tdf.Struct, error) {
			return &tdf.Struct{}, nil
		},
	})
	rt.Handle(router.Route{
		Component: protocol.ComponentAuthentication,
		Command:   protocol.CmdLogin,
		Handler: func(ctx context.Context, req *router.Request) (*tdf.Struct, error) {
			_, err := sessions.Authenticate(ctx, req.Session, session.Credential{Email: "x", Password: "y"})
			return nil, err
		},
	})

	server, client := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{sessions: sessions, router: rt, client: client, done: make(chan struct{}), cancel: cancel}

	conn := NewConnection(server, sessions, rt, nil, cfg)
	go func() {
		defer close(ts.done)
		conn.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
		<-ts.done
	})
	return ts
}

func (ts *testServer) send(t *testing.T, p protocol.Packet) {
	t.Helper()
	require.NoError(t, ts.client.SetWriteDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, protocol.WritePacket(ts.client, p))
}

func (ts *testServer) recv(t *testing.T) protocol.Packet {
	t.Helper()
	require.NoError(t, ts.client.SetReadDeadline(time.Now().Add(2*time.Second)))
	p, err := protocol.ReadPacket(ts.client, 0)
	require.NoError(t, err)
	return p
}

func (ts *testServer) waitClosed(t *testing.T) {
	t.Helper()
	require.NoError(t, ts.client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := ts.client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	select {
	case <-ts.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not finish")
	}
}

func TestConnection_PingReply(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	ts.send(t, protocol.Packet{Component: protocol.ComponentUtil, Command: protocol.CmdPing, Type: protocol.TypePing, Correlation: 9})

	p := ts.recv(t)
	assert.Equal(t, protocol.TypePingReply, p.Type)
	assert.Equal(t, uint16(9), p.Correlation)
}

func TestConnection_RequestBeforeLogin(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	ts.send(t, protocol.Packet{Component: 0x7802, Command: 0x0001, Type: protocol.TypeRequest, Correlation: 5})

	p := ts.recv(t)
	assert.Equal(t, protocol.TypeError, p.Type)
	assert.Equal(t, uint16(5), p.Correlation)
	assert.Equal(t, protocol.ErrNotAuthenticated, p.Error)
	assert.Equal(t, 1, ts.sessions.Count())
}

func TestConnection_ResponsesInOrder(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	go func() {
		for corr := uint16(1); corr <= 20; corr++ {
			_ = protocol.WritePacket(ts.client, protocol.Packet{Component: 0x7802, Command: 0x0001, Type: protocol.TypeRequest, Correlation: corr})
		}
	}()

	for corr := uint16(1); corr <= 20; corr++ {
		assert.Equal(t, corr, ts.recv(t).Correlation)
	}
}

func TestConnection_FatalAuthClosesAfterFlush(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	ts.send(t, protocol.Packet{Component: protocol.ComponentAuthentication, Command: protocol.CmdLogin, Type: protocol.TypeRequest, Correlation: 2})

	p := ts.recv(t)
	assert.Equal(t, protocol.ErrAuthRateLimited, p.Error)
	assert.Equal(t, uint16(2), p.Correlation)

	ts.waitClosed(t)
	assert.Zero(t, ts.sessions.Count())
}

func TestConnection_OversizedPayloadIsFatal(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{MaxPayload: 64})

	hdr := make([]byte, protocol.HeaderSize)
	binary.BigEndian.PutUint16(hdr[0:2], protocol.ComponentUtil)
	binary.BigEndian.PutUint32(hdr[9:13], 1<<20)
	require.NoError(t, ts.client.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := ts.client.Write(hdr)
	require.NoError(t, err)

	ts.waitClosed(t)
	assert.Zero(t, ts.sessions.Count())
}

func TestConnection_PushDelivered(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	ts.send(t, protocol.Packet{Component: protocol.ComponentUtil, Command: protocol.CmdPing, Type: protocol.TypePing})
	ts.recv(t)

	infos := ts.sessions.Snapshot()
	require.Len(t, infos, 1)
	s, ok := ts.sessions.Get(infos[0].ID)
	require.True(t, ok)

	require.True(t, s.Enqueue(protocol.Notification(protocol.ComponentGameManager, protocol.NotifyGameStateChange, nil)))
	p := ts.recv(t)
	assert.Equal(t, protocol.TypeNotification, p.Type)
	assert.Equal(t, protocol.NotifyGameStateChange, p.Command)
	assert.Zero(t, p.Correlation)
}

func TestConnection_PeerCloseTearsDown(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	ts.send(t, protocol.Packet{Component: protocol.ComponentUtil, Command: protocol.CmdPing, Type: protocol.TypePing})
	ts.recv(t)
	require.Equal(t, 1, ts.sessions.Count())

	ts.client.Close()
	select {
	case <-ts.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not finish")
	}
	assert.Zero(t, ts.sessions.Count())
}

func TestConnection_ServerDisconnect(t *testing.T) {
	t.Parallel()

	ts := startServer(t, ConnConfig{})
	ts.send(t, protocol.Packet{Component: protocol.ComponentUtil, Command: protocol.CmdPing, Type: protocol.TypePing})
	ts.recv(t)

	ts.sessions.CloseAll("maintenance")
	ts.waitClosed(t)
}

func TestTCPListener_Loopback(t *testing.T) {
	t.Parallel()

	engine := game.NewEngine(game.Config{})
	sessions := session.NewManager(session.Config{}, engine, denyAll{}, nil)
	l := NewTCPListener(ListenerConfig{Addr: "127.0.0.1:0"}, sessions, router.New(nil, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Start(ctx) }()

	conn, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WritePacket(conn, protocol.Packet{Component: 0x00ff, Command: 0x0099, Type: protocol.TypeRequest, Correlation: 1}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	p, err := protocol.ReadPacket(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrUnsupportedCommand, p.Error)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Zero(t, sessions.Count())
}

func TestTCPListener_ListenFailureUnblocksAddr(t *testing.T) {
	t.Parallel()

	sessions := session.NewManager(session.Config{}, game.NewEngine(game.Config{}), denyAll{}, nil)
	l := NewTCPListener(ListenerConfig{Addr: "127.0.0.1:not-a-port"}, sessions, router.New(nil, nil), nil)

	require.Error(t, l.Start(context.Background()))

	addr := make(chan net.Addr, 1)
	go func() { addr <- l.Addr() }()
	select {
	case a := <-addr:
		assert.Nil(t, a)
	case <-time.After(time.Second):
		t.Fatal("Addr blocked after a failed Start")
	}
}

func TestTCPListener_AcceptFailureWaitsForConnections(t *testing.T) {
	t.Parallel()

	sessions := session.NewManager(session.Config{}, game.NewEngine(game.Config{}), denyAll{}, nil)
	l := NewTCPListener(ListenerConfig{Addr: "127.0.0.1:0"}, sessions, router.New(nil, nil), nil)

	errc := make(chan error, 1)
	go func() { errc <- l.Start(context.Background()) }()

	conn, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, protocol.WritePacket(conn, protocol.Packet{Component: 0x00ff, Command: 0x0099, Type: protocol.TypeRequest, Correlation: 1}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = protocol.ReadPacket(conn, 0)
	require.NoError(t, err)

	// Closing the socket without cancelling makes Accept fail.
	require.NoError(t, l.Stop())
	select {
	case err := <-errc:
		t.Fatalf("Start returned with a connection still open: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	conn.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not return after its connection closed")
	}
	assert.Zero(t, sessions.Count())
}
