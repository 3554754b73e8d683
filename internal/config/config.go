// Package config handles configuration loading, validation, and persistence
// for the Blazer game backend.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultPort       = 42127
	DefaultAPIPort    = 5000

	// EnvPrefix is prepended to every environment override.
	EnvPrefix = "BLAZER_"
)

// Config is the root configuration structure for Blazer.
type Config struct {
	mu   sync.RWMutex
	path string

	Server   ServerConfig   `json:"server" envPrefix:"SERVER_"`
	Game     GameConfig     `json:"game" envPrefix:"GAME_"`
	Database DatabaseConfig `json:"database" envPrefix:"DB_"`
	API      APIConfig      `json:"api" envPrefix:"API_"`
	MQTT     MQTTConfig     `json:"mqtt" envPrefix:"MQTT_"`
	Timers   TimerConfig    `json:"timers" envPrefix:"TIMER_"`
	Logging  LoggingConfig  `json:"logging" envPrefix:"LOG_"`
}

// ServerConfig configures the client listener and per-connection limits.
type ServerConfig struct {
	Name string `json:"name" env:"NAME"`
	Host string `json:"host" env:"HOST"`
	Port int    `json:"port" env:"PORT"`

	TLSEnabled  bool   `json:"tls_enabled" env:"TLS_ENABLED"`
	TLSCertFile string `json:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `json:"tls_key_file" env:"TLS_KEY_FILE"`

	MaxPayloadBytes  int `json:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES"`
	MaxDepth         int `json:"max_depth" env:"MAX_DEPTH"`
	IdleTimeoutSec   int `json:"idle_timeout_sec" env:"IDLE_TIMEOUT_SEC"`
	WriteTimeoutSec  int `json:"write_timeout_sec" env:"WRITE_TIMEOUT_SEC"`
	FlushTimeoutSec  int `json:"flush_timeout_sec" env:"FLUSH_TIMEOUT_SEC"`
	OutboundQueue    int `json:"outbound_queue" env:"OUTBOUND_QUEUE"`
	MaxAuthFailures  int `json:"max_auth_failures" env:"MAX_AUTH_FAILURES"`
	ReadBufferBytes  int `json:"read_buffer_bytes" env:"READ_BUFFER_BYTES"`
	PingPeriodMillis int `json:"ping_period_ms" env:"PING_PERIOD_MS"`

	// ClientConfig is served by Util FetchClientConfig, keyed by config id.
	ClientConfig map[string]map[string]string `json:"client_config"`
}

// GameConfig holds engine limits.
type GameConfig struct {
	DefaultCapacity       int `json:"default_capacity" env:"DEFAULT_CAPACITY"`
	MaxCapacity           int `json:"max_capacity" env:"MAX_CAPACITY"`
	MinMatchPlayers       int `json:"min_match_players" env:"MIN_MATCH_PLAYERS"`
	MatchCapacity         int `json:"match_capacity" env:"MATCH_CAPACITY"`
	MatchmakingTimeoutSec int `json:"matchmaking_timeout_sec" env:"MATCHMAKING_TIMEOUT_SEC"`
}

// DatabaseConfig locates the account store.
type DatabaseConfig struct {
	Path string `json:"path" env:"PATH"`
	// Seed creates demo accounts when the store is empty.
	Seed bool `json:"seed" env:"SEED"`
}

// APIConfig configures the HTTP status and account surface.
type APIConfig struct {
	Enabled        bool     `json:"enabled" env:"ENABLED"`
	Port           int      `json:"port" env:"PORT"`
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS   int      `json:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	TokenSecret    string   `json:"token_secret" env:"TOKEN_SECRET"`
	TokenTTLHours  int      `json:"token_ttl_hours" env:"TOKEN_TTL_HOURS"`
	// AdminToken guards the operator endpoints. Empty restricts them to
	// loopback clients.
	AdminToken string `json:"admin_token" env:"ADMIN_TOKEN"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled" env:"ENABLED"`
	BrokerURL   string `json:"broker_url" env:"BROKER_URL"`
	Port        int    `json:"port" env:"PORT"`
	UseTLS      bool   `json:"use_tls" env:"USE_TLS"`
	CAFile      string `json:"ca_file" env:"CA_FILE"`
	ClientID    string `json:"client_id" env:"CLIENT_ID"`
	TopicPrefix string `json:"topic_prefix" env:"TOPIC_PREFIX"`
}

// TimerConfig holds periodic job intervals.
type TimerConfig struct {
	IdleSweepInterval        int `json:"idle_sweep_interval_sec" env:"IDLE_SWEEP_INTERVAL_SEC"`
	MatchmakingSweepInterval int `json:"matchmaking_sweep_interval_sec" env:"MATCHMAKING_SWEEP_INTERVAL_SEC"`
	StaleGameInterval        int `json:"stale_game_interval_sec" env:"STALE_GAME_INTERVAL_SEC"`
	HeartbeatInterval        int `json:"heartbeat_interval_sec" env:"HEARTBEAT_INTERVAL_SEC"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" env:"LEVEL"`
	Directory string `json:"directory" env:"DIRECTORY"`
	Console   bool   `json:"console" env:"CONSOLE"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:             "blazer",
			Host:             "0.0.0.0",
			Port:             DefaultPort,
			MaxPayloadBytes:  1 << 20,
			MaxDepth:         32,
			IdleTimeoutSec:   90,
			WriteTimeoutSec:  10,
			FlushTimeoutSec:  2,
			OutboundQueue:    64,
			MaxAuthFailures:  5,
			ReadBufferBytes:  16 << 10,
			PingPeriodMillis: 15000,
			ClientConfig: map[string]map[string]string{
				"ME3_DATA": {"GAW_SERVER_BASE_URL": "http://127.0.0.1:5000/"},
			},
		},
		Game: GameConfig{
			DefaultCapacity:       4,
			MaxCapacity:           16,
			MinMatchPlayers:       2,
			MatchCapacity:         4,
			MatchmakingTimeoutSec: 60,
		},
		Database: DatabaseConfig{
			Path: "data/blazer.db",
			Seed: true,
		},
		API: APIConfig{
			Enabled:       true,
			Port:          DefaultAPIPort,
			RateLimitRPS:  100,
			TokenTTLHours: 30 * 24,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "localhost",
			Port:        1883,
			TopicPrefix: "blazer",
		},
		Timers: TimerConfig{
			IdleSweepInterval:        15,
			MatchmakingSweepInterval: 5,
			StaleGameInterval:        60,
			HeartbeatInterval:        60,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: "logs",
			Console:   true,
		},
	}
}

// Load reads configuration from a JSON file, creating it with defaults when
// missing, and applies environment overrides.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("config file not found, creating default")
		data = nil
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	cfg.path = configPath
	if data != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("configuration loaded")
	}

	if cfg.API.TokenSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.API.TokenSecret = secret
	}

	// Persist new default fields before env overrides so secrets passed
	// through the environment never land in the file.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from BLAZER_* environment variables. Unset
// variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the listener configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// GetGame returns a copy of the engine configuration.
func (c *Config) GetGame() GameConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Game
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetTimers returns a copy of the timer configuration.
func (c *Config) GetTimers() TimerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Timers
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// GetDatabase returns a copy of the database configuration.
func (c *Config) GetDatabase() DatabaseConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Database
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// ListenAddr is the host:port the client listener binds.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Seconds converts one of the *Sec fields to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
