package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/session"
)

// ListenerConfig configures the client listener.
type ListenerConfig struct {
	Addr string
	// TLS enables TLS when non-nil.
	TLS  *tls.Config
	Conn ConnConfig
}

// TCPListener accepts game clients and serves each on its own goroutines.
type TCPListener struct {
	cfg      ListenerConfig
	sessions *session.Manager
	router   Dispatcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
	conns     sync.WaitGroup
}

// NewTCPListener creates a listener. m may be nil.
func NewTCPListener(cfg ListenerConfig, sessions *session.Manager, router Dispatcher, m *metrics.Metrics) *TCPListener {
	return &TCPListener{
		cfg:      cfg,
		sessions: sessions,
		router:   router,
		metrics:  m,
		logger:   log.With().Str("component", "tcp_listener").Logger(),
		ready:    make(chan struct{}),
	}
}

// Start listens and accepts until ctx ends or Accept fails, then waits for
// open connections to finish.
func (l *TCPListener) Start(ctx context.Context) error {
	defer l.markReady()

	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener on %s: %w", l.cfg.Addr, err)
	}
	if l.cfg.TLS != nil {
		ln = tls.NewListener(ln, l.cfg.TLS)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	l.markReady()

	l.logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", l.cfg.TLS != nil).
		Msg("TCP listener started")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.logger.Info().Msg("TCP listener stopping, waiting for connections")
				l.conns.Wait()
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			l.logger.Error().Err(err).Msg("failed to accept connection, waiting for connections")
			l.conns.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		l.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("new client connection")
		l.conns.Add(1)
		go func() {
			defer l.conns.Done()
			l.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs a single already-accepted connection to completion.
func (l *TCPListener) ServeConn(ctx context.Context, conn net.Conn) {
	NewConnection(conn, l.sessions, l.router, l.metrics, l.cfg.Conn).Serve(ctx)
}

func (l *TCPListener) markReady() {
	l.readyOnce.Do(func() { close(l.ready) })
}

// Addr returns the bound address once Start is listening, or nil when
// Start failed to listen.
func (l *TCPListener) Addr() net.Addr {
	<-l.ready
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Stop closes the listening socket.
func (l *TCPListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}
