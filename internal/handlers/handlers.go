// Package handlers holds the command table: every (component, command) the
// server answers, registered in one place.
package handlers

import (
	"context"
	"math"
	"time"

	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

// TokenIssuer signs login tokens for later token logins.
type TokenIssuer interface {
	IssueToken(ctx context.Context, id session.AccountID) (string, error)
}

// Deps are the services handlers call into.
type Deps struct {
	Sessions  *session.Manager
	Games     *game.Engine
	Inventory session.InventorySource
	Tokens    TokenIssuer
	Metrics   *metrics.Metrics

	// ServerName and Version are reported by PreAuth.
	ServerName string
	Version    string
	// ClientConfig holds the sections served by FetchClientConfig.
	ClientConfig map[string]map[string]string
	// PingPeriod is advertised to clients as their keep-alive interval.
	PingPeriod time.Duration

	now func() time.Time
}

func (d *Deps) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// Routes returns the full command table bound to d.
func Routes(d *Deps) []router.Route {
	return []router.Route{
		// Authentication
		{Component: protocol.ComponentAuthentication, Command: protocol.CmdLogin, Name: "login", Handler: d.login},
		{Component: protocol.ComponentAuthentication, Command: protocol.CmdListEntitlements, Name: "list_entitlements", Auth: true, Handler: d.listEntitlements},
		{Component: protocol.ComponentAuthentication, Command: protocol.CmdLogout, Name: "logout", Auth: true, Handler: d.logout},

		// GameManager
		{Component: protocol.ComponentGameManager, Command: protocol.CmdCreateGame, Name: "create_game", Auth: true, Handler: d.createGame},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdDestroyGame, Name: "destroy_game", Auth: true, Handler: d.destroyGame},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdAdvanceGameState, Name: "advance_game_state", Auth: true, Handler: d.advanceGameState},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdSetGameAttributes, Name: "set_game_attributes", Auth: true, Handler: d.setGameAttributes},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdSetPlayerAttributes, Name: "set_player_attributes", Auth: true, Handler: d.setPlayerAttributes},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdJoinGame, Name: "join_game", Auth: true, Handler: d.joinGame},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdRemovePlayer, Name: "remove_player", Auth: true, Handler: d.removePlayer},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdStartMatchmaking, Name: "start_matchmaking", Auth: true, Handler: d.startMatchmaking},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdCancelMatchmaking, Name: "cancel_matchmaking", Auth: true, Handler: d.cancelMatchmaking},
		{Component: protocol.ComponentGameManager, Command: protocol.CmdReplayGame, Name: "replay_game", Auth: true, Handler: d.replayGame},

		// Util
		{Component: protocol.ComponentUtil, Command: protocol.CmdFetchClientConfig, Name: "fetch_client_config", Handler: d.fetchClientConfig},
		{Component: protocol.ComponentUtil, Command: protocol.CmdPing, Name: "ping", Handler: d.ping},
		{Component: protocol.ComponentUtil, Command: protocol.CmdPreAuth, Name: "pre_auth", Handler: d.preAuth},
		{Component: protocol.ComponentUtil, Command: protocol.CmdPostAuth, Name: "post_auth", Auth: true, Handler: d.postAuth},

		// UserSessions
		{Component: protocol.ComponentUserSessions, Command: protocol.CmdFetchProfile, Name: "fetch_profile", Auth: true, Handler: d.fetchProfile},
		{Component: protocol.ComponentUserSessions, Command: protocol.CmdUpdateHardwareFlags, Name: "update_hardware_flags", Auth: true, Handler: d.updateHardwareFlags},
		{Component: protocol.ComponentUserSessions, Command: protocol.CmdUpdateNetworkInfo, Name: "update_network_info", Auth: true, Handler: d.updateNetworkInfo},
	}
}

// Register adds the command table to rt.
func Register(rt *router.Router, d *Deps) {
	for _, r := range Routes(d) {
		rt.Handle(r)
	}
}

// uint32Field reads a field that must fit in 32 bits.
func uint32Field(body *tdf.Struct, label string) (uint32, error) {
	v, err := body.GetUint(label)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, router.Errorf(protocol.ErrMalformedPayload, "%s out of range: %d", label, v)
	}
	return uint32(v), nil
}

// optionalStringMap reads a map<string,string> field, or nil when absent.
func optionalStringMap(body *tdf.Struct, label string) (map[string]string, error) {
	if !body.Has(label) {
		return nil, nil
	}
	return body.GetStringMap(label)
}
