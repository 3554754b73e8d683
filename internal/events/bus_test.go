package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_EmitSync(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	var calls atomic.Int32

	bus.Subscribe(EventGameCreated, "counter", func(ctx context.Context, e Event) error {
		calls.Add(1)
		assert.False(t, e.Time.IsZero())
		return nil
	})
	bus.Subscribe(EventGameCreated, "failing", func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(EventGameCreated, "panicking", func(ctx context.Context, e Event) error {
		panic("handler bug")
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventGameCreated, Payload: GamePayload{GameID: 1}})
	require.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, bus.HandlerCount(EventGameCreated))
}

func TestEventBus_EmitAfterStop(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	var calls atomic.Int32
	bus.SubscribeMany([]EventType{EventPlayerJoined, EventPlayerLeft}, "counter", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventPlayerJoined})
	bus.Emit(context.Background(), Event{Type: EventPlayerLeft})
	bus.Stop()
	assert.Equal(t, int32(2), calls.Load())

	bus.Emit(context.Background(), Event{Type: EventPlayerJoined})
	require.NoError(t, bus.EmitSync(context.Background(), Event{Type: EventPlayerJoined}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestEventBus_Unsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	noop := func(ctx context.Context, e Event) error { return nil }
	bus.Subscribe(EventHeartbeat, "a", noop)
	bus.Subscribe(EventHeartbeat, "b", noop)

	bus.Unsubscribe(EventHeartbeat, "a")
	assert.Equal(t, 1, bus.HandlerCount(EventHeartbeat))
}
