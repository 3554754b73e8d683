package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/blazer/internal/config"
	"github.com/energizer-project/blazer/internal/events"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t doneToken) Error() error                   { return t.err }

type message struct {
	topic    string
	retained bool
	body     map[string]interface{}
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	published []message
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var body map[string]interface{}
	_ = json.Unmarshal(payload.([]byte), &body)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message{topic: topic, retained: retained, body: body})
	return doneToken{}
}

func (c *fakeClient) messages() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.published...)
}

func newTestHandler(prefix string, bus *events.EventBus, c client) *MQTTHandler {
	return &MQTTHandler{
		cfg:      config.MQTTConfig{Enabled: true, TopicPrefix: prefix},
		bus:      bus,
		client:   c,
		logger:   zerolog.Nop(),
		metadata: map[string]interface{}{"hostname": "test-host"},
	}
}

func TestNewMQTTHandler_Disabled(t *testing.T) {
	_, err := NewMQTTHandler(config.MQTTConfig{}, events.NewEventBus(), "test")
	assert.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	h := newTestHandler("blazer/", nil, &fakeClient{})
	tests := []struct {
		event events.EventType
		want  string
	}{
		{events.EventSessionOpened, "blazer/session/session_opened"},
		{events.EventGameCreated, "blazer/game/game_created"},
		{events.EventPlayerLeft, "blazer/game/player_left"},
		{events.EventHostMigrated, "blazer/game/host_migrated"},
		{events.EventMatchmakingMatched, "blazer/matchmaking/matchmaking_matched"},
		{events.EventHeartbeat, "blazer/server/heartbeat"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.topicFor(tt.event))
	}

	bare := newTestHandler("", nil, &fakeClient{})
	assert.Equal(t, "server/status", bare.topic(topicStatus))
}

func TestPublish_SkipsWhenDisconnected(t *testing.T) {
	t.Parallel()

	c := &fakeClient{}
	h := newTestHandler("blazer", nil, c)
	h.publish("blazer/x", map[string]interface{}{"a": 1})
	assert.Empty(t, c.messages())
}

func TestStart_ForwardsEventsAndPublishesShutdown(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()
	c := &fakeClient{}
	h := newTestHandler("blazer", bus, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()

	require.Eventually(t, func() bool {
		return bus.HandlerCount(events.EventGameCreated) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventGameCreated,
		Source:  "engine",
		Payload: events.GamePayload{GameID: 3, State: "INITIALIZING"},
	}))

	cancel()
	require.NoError(t, <-done)

	msgs := c.messages()
	require.Len(t, msgs, 2)

	assert.Equal(t, "blazer/game/game_created", msgs[0].topic)
	assert.False(t, msgs[0].retained)
	assert.Equal(t, "test-host", msgs[0].body["hostname"])
	inner := msgs[0].body["payload"].(map[string]interface{})
	assert.Equal(t, "game_created", inner["event"])
	assert.EqualValues(t, 3, inner["payload"].(map[string]interface{})["game_id"])

	assert.Equal(t, "blazer/server/status", msgs[1].topic)
	assert.True(t, msgs[1].retained)
	assert.Equal(t, "offline", msgs[1].body["payload"].(map[string]interface{})["status"])
	assert.False(t, c.IsConnected())
}

func TestClientID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fixed", clientID("fixed", "host"))
	a, b := clientID("", "host"), clientID("", "host")
	assert.Len(t, a, len("blazer-host-")+8)
	assert.NotEqual(t, a, b)
}
