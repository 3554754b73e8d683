package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.PacketReceived("util.ping", "request")
	m.DispatchError("game_manager.join_game", "GAME_FULL")
	m.Dispatched("util.ping", time.Millisecond)
	m.NotificationDropped()
	m.SetGameStats(3, 7, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packetsIn.WithLabelValues("util.ping", "request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchErrors.WithLabelValues("game_manager.join_game", "GAME_FULL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.players))
	assert.Equal(t, 1, testutil.CollectAndCount(m.handlerDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.PacketSent("util.ping", "response")
		m.AuthFailed()
		m.SetGameStats(1, 1, 1)
	})
}
