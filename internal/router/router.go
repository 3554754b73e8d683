// Package router maps (component, command) pairs to request handlers and
// turns handler results into response packets.
package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

// Request is one decoded client request.
type Request struct {
	Session *session.Session
	Packet  protocol.Packet
	Body    *tdf.Struct
}

// Handler serves one command. A nil body with a nil error sends an empty
// response.
type Handler func(ctx context.Context, req *Request) (*tdf.Struct, error)

// Route binds a handler to a command.
type Route struct {
	Component uint16
	Command   uint16
	Name      string
	// Auth requires a logged-in session.
	Auth    bool
	Handler Handler
}

type routeKey struct {
	component uint16
	command   uint16
}

// Router dispatches requests. Routes are registered at startup and read
// without locking afterwards.
type Router struct {
	routes  map[routeKey]Route
	parser  *protocol.BodyParser
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates an empty router. m may be nil.
func New(parser *protocol.BodyParser, m *metrics.Metrics) *Router {
	if parser == nil {
		parser = protocol.NewBodyParser(0)
	}
	return &Router{
		routes:  make(map[routeKey]Route),
		parser:  parser,
		metrics: m,
		logger:  log.With().Str("component", "router").Logger(),
	}
}

// Handle registers r. Registering the same pair twice panics.
func (rt *Router) Handle(r Route) {
	if r.Handler == nil {
		panic(fmt.Sprintf("router: nil handler for %s", protocol.CommandName(r.Component, r.Command, false)))
	}
	key := routeKey{r.Component, r.Command}
	if existing, ok := rt.routes[key]; ok {
		panic(fmt.Sprintf("router: %s already registered as %q", protocol.CommandName(r.Component, r.Command, false), existing.Name))
	}
	if r.Name == "" {
		r.Name = protocol.CommandName(r.Component, r.Command, false)
	}
	rt.routes[key] = r
}

// Routes returns the registered routes ordered by component and command.
func (rt *Router) Routes() []Route {
	out := make([]Route, 0, len(rt.routes))
	for _, r := range rt.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}
		return out[i].Command < out[j].Command
	})
	return out
}

// Dispatch serves one packet from s. It returns the packet to send back, or
// nil when nothing should be sent. fatal asks the caller to close the
// connection once the response has been flushed.
func (rt *Router) Dispatch(ctx context.Context, s *session.Session, p protocol.Packet) (resp *protocol.Packet, fatal bool) {
	command := protocol.CommandName(p.Component, p.Command, false)
	rt.metrics.PacketReceived(command, p.Type.String())

	if p.Type != protocol.TypeRequest {
		s.Logger().Debug().
			Str("command", command).
			Stringer("type", p.Type).
			Msg("ignoring non-request packet")
		return nil, false
	}

	route, ok := rt.routes[routeKey{p.Component, p.Command}]
	if !ok {
		s.Logger().Debug().Str("command", command).Uint16("correlation", p.Correlation).Msg("unsupported command")
		return rt.fail(p, command, protocol.ErrUnsupportedCommand), false
	}

	if route.Auth && !s.Authenticated() {
		return rt.fail(p, command, protocol.ErrNotAuthenticated), false
	}

	body, err := rt.parser.Parse(p)
	if err != nil {
		return rt.fail(p, command, protocol.ErrMalformedPayload), false
	}

	start := time.Now()
	out, err := rt.call(ctx, route, &Request{Session: s, Packet: p, Body: body})
	rt.metrics.Dispatched(command, time.Since(start))

	if err != nil {
		code, fatal := Classify(err)
		ev := s.Logger().Debug()
		if code == protocol.ErrInternal {
			ev = s.Logger().Error()
		}
		ev.Err(err).
			Str("command", command).
			Uint16("correlation", p.Correlation).
			Stringer("code", code).
			Bool("fatal", fatal).
			Msg("request failed")
		return rt.fail(p, command, code), fatal
	}

	raw, err := tdf.EncodePayload(out)
	if err != nil {
		s.Logger().Error().Err(err).Str("command", command).Msg("failed to encode response")
		return rt.fail(p, command, protocol.ErrInternal), false
	}
	reply := protocol.Response(p, raw)
	return &reply, false
}

// call runs the handler, turning a panic into an internal error.
func (rt *Router) call(ctx context.Context, route Route, req *Request) (body *tdf.Struct, err error) {
	defer func() {
		if r := recover(); r != nil {
			req.Session.Logger().Error().
				Str("command", route.Name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			body, err = nil, &Error{Code: protocol.ErrInternal, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return route.Handler(ctx, req)
}

func (rt *Router) fail(p protocol.Packet, command string, code protocol.ErrorCode) *protocol.Packet {
	rt.metrics.DispatchError(command, code.String())
	reply := protocol.ErrorResponse(p, code, nil)
	return &reply
}
