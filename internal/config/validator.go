package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the whole configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}
	validateServer(&cfg.Server, result)
	validateGame(&cfg.Game, result)
	validateAPI(&cfg.API, cfg.Server.Port, result)
	validateMQTT(&cfg.MQTT, result)
	validateTimers(&cfg.Timers, result)
	validateLogging(&cfg.Logging, result)

	if strings.TrimSpace(cfg.Database.Path) == "" {
		result.AddError("database.path", "database path is required")
	}
	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if net.ParseIP(s.Host) == nil && s.Host != "localhost" {
		result.AddError("server.host", fmt.Sprintf("not an IP address: %q", s.Host))
	}
	validatePort(s.Port, "server.port", result)

	if s.TLSEnabled {
		validateFile(s.TLSCertFile, "server.tls_cert_file", "TLS certificate file", result)
		validateFile(s.TLSKeyFile, "server.tls_key_file", "TLS key file", result)
	} else {
		result.AddWarning("server.tls_enabled", "TLS is disabled, clients will connect in plain text")
	}

	if s.MaxPayloadBytes < 1024 {
		result.AddError("server.max_payload_bytes", "must be at least 1024")
	}
	if s.MaxDepth < 1 {
		result.AddError("server.max_depth", "must be at least 1")
	} else if s.MaxDepth > 128 {
		result.AddWarning("server.max_depth", fmt.Sprintf("deep nesting (%d) allows expensive payloads", s.MaxDepth))
	}
	if s.OutboundQueue < 1 {
		result.AddError("server.outbound_queue", "must be at least 1")
	}
	if s.MaxAuthFailures < 1 {
		result.AddError("server.max_auth_failures", "must be at least 1")
	}
	if s.IdleTimeoutSec < 10 {
		result.AddWarning("server.idle_timeout_sec", "idle timeout less than 10 seconds may drop healthy clients")
	}
	if s.PingPeriodMillis > 0 && s.PingPeriodMillis >= s.IdleTimeoutSec*1000 {
		result.AddWarning("server.ping_period_ms", "ping period is not shorter than the idle timeout")
	}
}

func validateGame(g *GameConfig, result *ValidationResult) {
	if g.MaxCapacity < 2 {
		result.AddError("game.max_capacity", "must be at least 2")
	}
	if g.DefaultCapacity < 1 || g.DefaultCapacity > g.MaxCapacity {
		result.AddError("game.default_capacity",
			fmt.Sprintf("must be between 1 and max_capacity (%d)", g.MaxCapacity))
	}
	if g.MinMatchPlayers < 2 {
		result.AddError("game.min_match_players", "must be at least 2")
	}
	if g.MatchCapacity < g.MinMatchPlayers {
		result.AddError("game.match_capacity", "must not be below min_match_players")
	}
	if g.MatchCapacity > g.MaxCapacity {
		result.AddWarning("game.match_capacity", "exceeds max_capacity and will be clamped")
	}
	if g.MatchmakingTimeoutSec < 5 {
		result.AddWarning("game.matchmaking_timeout_sec", "matchmaking timeout under 5 seconds rarely finds a match")
	}
}

func validateAPI(a *APIConfig, serverPort int, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.Port == serverPort {
		result.AddError("api.port", "port conflict detected: api and server ports must differ")
	}
	if len(a.TokenSecret) < 16 {
		result.AddError("api.token_secret", "token secret must be at least 16 characters")
	}
	if a.TokenTTLHours < 1 {
		result.AddError("api.token_ttl_hours", "must be at least 1")
	}
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
	if a.AdminToken == "" {
		result.AddWarning("api.admin_token", "operator endpoints are limited to loopback clients")
	} else if len(a.AdminToken) < 16 {
		result.AddError("api.admin_token", "admin token must be at least 16 characters")
	}
	for _, origin := range a.AllowedOrigins {
		if origin == "*" {
			result.AddWarning("api.allowed_origins", "wildcard origin allows any site to call the API")
			break
		}
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && m.CAFile != "" {
		validateFile(m.CAFile, "mqtt.ca_file", "MQTT CA file", result)
	}
}

func validateTimers(t *TimerConfig, result *ValidationResult) {
	intervals := map[string]int{
		"timers.idle_sweep_interval_sec":        t.IdleSweepInterval,
		"timers.matchmaking_sweep_interval_sec": t.MatchmakingSweepInterval,
		"timers.stale_game_interval_sec":        t.StaleGameInterval,
		"timers.heartbeat_interval_sec":         t.HeartbeatInterval,
	}
	for field, v := range intervals {
		if v < 1 {
			result.AddError(field, "interval must be at least 1 second")
		}
	}
	if t.HeartbeatInterval > 0 && t.HeartbeatInterval < 10 {
		result.AddWarning("timers.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}
}

func validateLogging(l *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		result.AddError("logging.level", fmt.Sprintf("unknown level %q", l.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

func validateFile(path, field, what string, result *ValidationResult) {
	if strings.TrimSpace(path) == "" {
		result.AddError(field, what+" is required")
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.AddError(field, fmt.Sprintf("file does not exist: %s", path))
	}
}
