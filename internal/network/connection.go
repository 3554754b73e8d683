// Package network accepts client connections and runs one reader and one
// writer goroutine per connection.
package network

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/session"
)

// Dispatcher serves one request packet.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *session.Session, p protocol.Packet) (*protocol.Packet, bool)
}

// ConnConfig bounds a single connection.
type ConnConfig struct {
	MaxPayload   int
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	ReadBuffer   int
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.MaxPayload <= 0 {
		c.MaxPayload = protocol.DefaultMaxPayload
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 90 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = 16 << 10
	}
	return c
}

// Connection drives one client socket. Requests are dispatched in arrival
// order on the reader goroutine; everything sent to the client goes through
// the session's outbound queue and the writer goroutine.
type Connection struct {
	conn     net.Conn
	sess     *session.Session
	sessions *session.Manager
	router   Dispatcher
	metrics  *metrics.Metrics
	cfg      ConnConfig
	logger   zerolog.Logger

	connectedAt time.Time
}

// NewConnection registers a session for conn.
func NewConnection(conn net.Conn, sessions *session.Manager, router Dispatcher, m *metrics.Metrics, cfg ConnConfig) *Connection {
	sess := sessions.Open(conn.RemoteAddr().String(), conn)
	return &Connection{
		conn:        conn,
		sess:        sess,
		sessions:    sessions,
		router:      router,
		metrics:     m,
		cfg:         cfg.withDefaults(),
		logger:      sess.Logger().With().Str("component", "connection").Logger(),
		connectedAt: time.Now(),
	}
}

// Session returns the session bound to this connection.
func (c *Connection) Session() *session.Session { return c.sess }

// Serve runs the connection until the peer goes away, a fatal error occurs,
// the session is torn down elsewhere, or ctx ends.
func (c *Connection) Serve(ctx context.Context) {
	c.metrics.ConnectionOpened()
	defer c.metrics.ConnectionClosed()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	// Unblock the reader when the server shuts down or the session is torn
	// down by someone else.
	stopCtx := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stopCtx()
	go func() {
		<-c.sess.Done()
		_ = c.conn.SetReadDeadline(time.Now())
	}()

	reason := c.readLoop(ctx)
	c.sessions.Disconnect(c.sess.ID(), reason)
	wg.Wait()

	c.logger.Debug().
		Str("reason", reason).
		Dur("duration", time.Since(c.connectedAt)).
		Msg("connection finished")
}

// readLoop returns the reason the connection ended.
func (c *Connection) readLoop(ctx context.Context) string {
	r := bufio.NewReaderSize(c.conn, c.cfg.ReadBuffer)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		p, err := protocol.ReadPacket(r, c.cfg.MaxPayload)
		if err != nil {
			return c.readError(ctx, err)
		}
		c.sess.Touch()

		if p.Type == protocol.TypePing {
			c.metrics.PacketReceived(protocol.CommandName(p.Component, p.Command, false), p.Type.String())
			c.sess.Enqueue(protocol.PingReply(p))
			continue
		}

		resp, fatal := c.router.Dispatch(ctx, c.sess, p)
		if resp != nil {
			if err := c.sess.Send(ctx, *resp); err != nil {
				return "send failed: " + err.Error()
			}
		}
		if fatal {
			c.logger.Warn().
				Str("command", protocol.CommandName(p.Component, p.Command, false)).
				Stringer("code", resp.Error).
				Msg("fatal request error, closing connection")
			return "fatal: " + resp.Error.String()
		}
	}
}

func (c *Connection) readError(ctx context.Context, err error) string {
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		return "server shutdown"
	case c.sess.State() == session.StateDisconnected:
		return "session closed"
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return "closed by peer"
	case errors.Is(err, protocol.ErrPayloadTooLarge), errors.Is(err, protocol.ErrMalformedHeader):
		c.logger.Warn().Err(err).Msg("framing error, closing connection")
		return "framing error"
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Info().Dur("idle", c.cfg.IdleTimeout).Msg("connection idle, closing")
		return "idle timeout"
	default:
		c.logger.Debug().Err(err).Msg("read error")
		return "read error"
	}
}

// writeLoop drains the outbound queue until the session is torn down, then
// flushes what is left and lets teardown close the socket.
func (c *Connection) writeLoop() {
	defer c.sess.MarkFlushed()

	w := bufio.NewWriter(c.conn)
	out := c.sess.Outbound()
	failed := false

	write := func(p protocol.Packet) {
		if failed {
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		if _, err := w.Write(protocol.AppendPacket(nil, p)); err != nil {
			c.writeFailed(err)
			failed = true
			return
		}
		c.metrics.PacketSent(protocol.CommandName(p.Component, p.Command, p.Type == protocol.TypeNotification), p.Type.String())
		if len(out) == 0 {
			if err := w.Flush(); err != nil {
				c.writeFailed(err)
				failed = true
			}
		}
	}

	for {
		select {
		case p := <-out:
			write(p)
		case <-c.sess.Done():
			for {
				select {
				case p := <-out:
					write(p)
				default:
					if !failed {
						_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
						_ = w.Flush()
					}
					return
				}
			}
		}
	}
}

func (c *Connection) writeFailed(err error) {
	c.logger.Debug().Err(err).Msg("write failed")
	c.sessions.Disconnect(c.sess.ID(), "write error")
}
