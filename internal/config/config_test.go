package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.FileExists(t, cfg.Path())
	assert.Equal(t, DefaultPort, cfg.GetServer().Port)
	assert.Len(t, cfg.GetAPI().TokenSecret, 64)

	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.GetAPI().TokenSecret, again.GetAPI().TokenSecret, "generated secret is persisted")
}

func TestLoad_OverlaysFile(t *testing.T) {
	dir := t.TempDir()
	body := `{"server":{"port":9999},"game":{"max_capacity":8}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(body), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.GetServer().Port)
	assert.Equal(t, 8, cfg.GetGame().MaxCapacity)
	assert.Equal(t, 4, cfg.GetGame().DefaultCapacity, "unset fields keep defaults")
}

func TestLoad_RejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BLAZER_SERVER_PORT", "4000")
	t.Setenv("BLAZER_API_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("BLAZER_MQTT_ENABLED", "true")
	t.Setenv("BLAZER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 4000, cfg.GetServer().Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetAPI().AllowedOrigins)
	assert.True(t, cfg.GetMQTT().Enabled)
	assert.Equal(t, "debug", cfg.GetLogging().Level)
	assert.Equal(t, DefaultAPIPort, cfg.GetAPI().Port, "unset variables leave values alone")
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("BLAZER_SERVER_PORT", "not-a-port")

	assert.Error(t, DefaultConfig().ApplyEnv())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.API.TokenSecret = "0123456789abcdef0123"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad host", func(c *Config) { c.Server.Host = "not an ip" }, "server.host"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"tls without cert", func(c *Config) { c.Server.TLSEnabled = true }, "server.tls_cert_file"},
		{"tiny payload", func(c *Config) { c.Server.MaxPayloadBytes = 10 }, "server.max_payload_bytes"},
		{"no queue", func(c *Config) { c.Server.OutboundQueue = 0 }, "server.outbound_queue"},
		{"default over max", func(c *Config) { c.Game.DefaultCapacity = 32 }, "game.default_capacity"},
		{"min match", func(c *Config) { c.Game.MinMatchPlayers = 1 }, "game.min_match_players"},
		{"port clash", func(c *Config) { c.API.Port = c.Server.Port }, "api.port"},
		{"short secret", func(c *Config) { c.API.TokenSecret = "x" }, "api.token_secret"},
		{"mqtt no broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.BrokerURL = "" }, "mqtt.broker_url"},
		{"zero timer", func(c *Config) { c.Timers.IdleSweepInterval = 0 }, "timers.idle_sweep_interval_sec"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"no db", func(c *Config) { c.Database.Path = " " }, "database.path"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			result := Validate(cfg)

			if tt.field == "" {
				assert.True(t, result.IsValid(), "%v", result.Errors)
				return
			}
			require.False(t, result.IsValid())
			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_PlainTextWarning(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.API.TokenSecret = "0123456789abcdef0123"
	result := Validate(cfg)

	require.True(t, result.IsValid())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "server.tls_enabled", result.Warnings[0].Field)
}
