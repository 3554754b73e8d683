// Package telemetry publishes bus events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/config"
	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/util"
)

// Topic groups under the configured prefix.
const (
	topicSession     = "session"
	topicGame        = "game"
	topicMatchmaking = "matchmaking"
	topicServer      = "server"
	topicStatus      = "server/status"
)

// client is the part of mqtt.Client the handler uses.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTHandler forwards bus events to the broker as JSON messages.
type MQTTHandler struct {
	mu sync.Mutex

	cfg    config.MQTTConfig
	bus    *events.EventBus
	client client
	logger zerolog.Logger

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates the handler and configures, but does not connect,
// the broker client.
func NewMQTTHandler(cfg config.MQTTConfig, bus *events.EventBus, version string) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:    cfg,
		bus:    bus,
		logger: log.With().Str("component", "mqtt").Logger(),
		metadata: map[string]interface{}{
			"hostname":    sysInfo.Hostname,
			"platform":    sysInfo.Platform,
			"app_version": version,
		},
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))
	opts.SetClientID(clientID(cfg.ClientID, sysInfo.Hostname))
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)
	opts.SetWill(h.topic(topicStatus), `{"status":"offline"}`, 1, true)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CAFile != "" {
			pem, err := os.ReadFile(cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
			}
			tlsConfig.RootCAs = pool
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
		h.publishRetained(h.topic(topicStatus), map[string]interface{}{"status": "online"})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

func clientID(configured, hostname string) string {
	if configured != "" {
		return configured
	}
	return fmt.Sprintf("blazer-%s-%s", hostname, uuid.NewString()[:8])
}

// Start connects, subscribes to the bus and blocks until ctx ends.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.bus.SubscribeMany(events.AllEventTypes, "mqtt", h.onEvent)

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

func (h *MQTTHandler) onEvent(_ context.Context, event events.Event) error {
	h.publish(h.topicFor(event.Type), map[string]interface{}{
		"event":   string(event.Type),
		"source":  event.Source,
		"time":    event.Time.UTC().Format(time.RFC3339Nano),
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) topic(suffix string) string {
	prefix := strings.TrimSuffix(h.cfg.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// topicFor maps an event to <prefix>/<group>/<event type>.
func (h *MQTTHandler) topicFor(t events.EventType) string {
	group := topicServer
	switch name := string(t); {
	case strings.HasPrefix(name, "session_"):
		group = topicSession
	case strings.HasPrefix(name, "matchmaking_"):
		group = topicMatchmaking
	case strings.HasPrefix(name, "game_"), strings.HasPrefix(name, "player_"), t == events.EventHostMigrated:
		group = topicGame
	}
	return h.topic(group + "/" + string(t))
}

func (h *MQTTHandler) publish(topic string, payload interface{}) {
	h.send(topic, payload, false)
}

func (h *MQTTHandler) publishRetained(topic string, payload interface{}) {
	h.send(topic, payload, true)
}

func (h *MQTTHandler) send(topic string, payload interface{}, retained bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, retained, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// PublishShutdown marks the server offline on the retained status topic.
func (h *MQTTHandler) PublishShutdown() {
	h.publishRetained(h.topic(topicStatus), map[string]interface{}{"status": "offline"})
}
