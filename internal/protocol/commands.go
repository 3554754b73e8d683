package protocol

import "fmt"

// Components.
const (
	ComponentAuthentication uint16 = 0x0001
	ComponentGameManager    uint16 = 0x0004
	ComponentUtil           uint16 = 0x0009
	ComponentUserSessions   uint16 = 0x7802
)

// Authentication commands.
const (
	CmdLogin            uint16 = 0x000A
	CmdListEntitlements uint16 = 0x001D
	CmdLogout           uint16 = 0x0046
)

// GameManager commands.
const (
	CmdCreateGame          uint16 = 0x0001
	CmdDestroyGame         uint16 = 0x0002
	CmdAdvanceGameState    uint16 = 0x0003
	CmdSetGameAttributes   uint16 = 0x0007
	CmdSetPlayerAttributes uint16 = 0x0008
	CmdJoinGame            uint16 = 0x0009
	CmdRemovePlayer        uint16 = 0x000B
	CmdStartMatchmaking    uint16 = 0x0010
	CmdCancelMatchmaking   uint16 = 0x0011
	CmdReplayGame          uint16 = 0x0013
)

// GameManager notifications.
const (
	NotifyMatchmakingFailed  uint16 = 0x000A
	NotifyGameSetup          uint16 = 0x0014
	NotifyPlayerJoining      uint16 = 0x0015
	NotifyPlayerRemoved      uint16 = 0x0028
	NotifyGameAttribChange   uint16 = 0x0050
	NotifyPlayerAttribChange uint16 = 0x005A
	NotifyGameStateChange    uint16 = 0x0064
)

// Util commands.
const (
	CmdFetchClientConfig uint16 = 0x0001
	CmdPing              uint16 = 0x0002
	CmdPreAuth           uint16 = 0x0007
	CmdPostAuth          uint16 = 0x0008
)

// UserSessions commands.
const (
	CmdFetchProfile        uint16 = 0x0001
	CmdUpdateHardwareFlags uint16 = 0x0008
	CmdUpdateNetworkInfo   uint16 = 0x0014
)

var componentNames = map[uint16]string{
	ComponentAuthentication: "authentication",
	ComponentGameManager:    "game_manager",
	ComponentUtil:           "util",
	ComponentUserSessions:   "user_sessions",
}

type commandKey struct {
	component uint16
	command   uint16
}

var commandNames = map[commandKey]string{
	{ComponentAuthentication, CmdLogin}:            "login",
	{ComponentAuthentication, CmdListEntitlements}: "list_entitlements",
	{ComponentAuthentication, CmdLogout}:           "logout",

	{ComponentGameManager, CmdCreateGame}:          "create_game",
	{ComponentGameManager, CmdDestroyGame}:         "destroy_game",
	{ComponentGameManager, CmdAdvanceGameState}:    "advance_game_state",
	{ComponentGameManager, CmdSetGameAttributes}:   "set_game_attributes",
	{ComponentGameManager, CmdSetPlayerAttributes}: "set_player_attributes",
	{ComponentGameManager, CmdJoinGame}:            "join_game",
	{ComponentGameManager, CmdRemovePlayer}:        "remove_player",
	{ComponentGameManager, CmdStartMatchmaking}:    "start_matchmaking",
	{ComponentGameManager, CmdCancelMatchmaking}:   "cancel_matchmaking",
	{ComponentGameManager, CmdReplayGame}:          "replay_game",

	{ComponentUtil, CmdFetchClientConfig}: "fetch_client_config",
	{ComponentUtil, CmdPing}:              "ping",
	{ComponentUtil, CmdPreAuth}:           "pre_auth",
	{ComponentUtil, CmdPostAuth}:          "post_auth",

	{ComponentUserSessions, CmdFetchProfile}:        "fetch_profile",
	{ComponentUserSessions, CmdUpdateHardwareFlags}: "update_hardware_flags",
	{ComponentUserSessions, CmdUpdateNetworkInfo}:   "update_network_info",
}

var notificationNames = map[uint16]string{
	NotifyMatchmakingFailed:  "matchmaking_failed",
	NotifyGameSetup:          "game_setup",
	NotifyPlayerJoining:      "player_joining",
	NotifyPlayerRemoved:      "player_removed",
	NotifyGameAttribChange:   "game_attrib_change",
	NotifyPlayerAttribChange: "player_attrib_change",
	NotifyGameStateChange:    "game_state_change",
}

// ComponentName returns a readable name for a component id.
func ComponentName(component uint16) string {
	if name, ok := componentNames[component]; ok {
		return name
	}
	return fmt.Sprintf("component(0x%04x)", component)
}

// CommandName returns "component.command" for logs and metric labels.
// Unknown pairs render as hex so the label set stays bounded by what
// clients actually send.
func CommandName(component, command uint16, notification bool) string {
	if notification && component == ComponentGameManager {
		if name, ok := notificationNames[command]; ok {
			return ComponentName(component) + "." + name
		}
	}
	if name, ok := commandNames[commandKey{component, command}]; ok {
		return ComponentName(component) + "." + name
	}
	return fmt.Sprintf("%s.0x%04x", ComponentName(component), command)
}
