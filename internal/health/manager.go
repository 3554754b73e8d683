// Package health runs the periodic housekeeping jobs: idle session sweeps,
// matchmaking expiry, orphaned membership purges and the heartbeat that
// feeds metrics and telemetry.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/config"
	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/util"
)

// Sessions is the session registry as seen by the health jobs.
type Sessions interface {
	CleanIdle(timeout time.Duration) int
	Exists(id uint32) bool
	Count() int
	CountAuthenticated() int
}

// Games is the game engine as seen by the health jobs.
type Games interface {
	ExpireMatchmaking(now time.Time) []uint32
	PurgeOrphans(alive func(sid uint32) bool) int
	Stats() game.Stats
}

// Manager runs the periodic jobs, each on its own ticker.
type Manager struct {
	timers      config.TimerConfig
	idleTimeout time.Duration
	sessions    Sessions
	games       Games
	bus         *events.EventBus
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	now    func() time.Time
	sample func() (cpuPercent, memPercent float64)
}

// NewManager creates a health manager. bus and m may be nil.
func NewManager(
	timers config.TimerConfig,
	idleTimeout time.Duration,
	sessions Sessions,
	games Games,
	bus *events.EventBus,
	m *metrics.Metrics,
) *Manager {
	return &Manager{
		timers:      timers,
		idleTimeout: idleTimeout,
		sessions:    sessions,
		games:       games,
		bus:         bus,
		metrics:     m,
		logger:      log.With().Str("component", "health").Logger(),
		now:         time.Now,
		sample:      sampleHost,
	}
}

// Start launches every job and blocks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	jobs := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"idle_sweep", m.timers.IdleSweepInterval, m.sweepIdle},
		{"matchmaking_expiry", m.timers.MatchmakingSweepInterval, m.expireMatchmaking},
		{"orphan_purge", m.timers.StaleGameInterval, m.purgeOrphans},
		{"heartbeat", m.timers.HeartbeatInterval, m.heartbeat},
	}

	started := 0
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		started++

		job := job
		go func() {
			ticker := time.NewTicker(config.Seconds(job.interval))
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					job.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("jobs", started).Msg("health manager started")

	<-ctx.Done()
	m.logger.Info().Msg("health manager stopped")
}

func (m *Manager) sweepIdle(context.Context) {
	if m.idleTimeout <= 0 {
		return
	}
	if n := m.sessions.CleanIdle(m.idleTimeout); n > 0 {
		m.logger.Debug().Int("closed", n).Msg("idle sweep")
	}
}

func (m *Manager) expireMatchmaking(context.Context) {
	expired := m.games.ExpireMatchmaking(m.now())
	if len(expired) > 0 {
		m.logger.Debug().Int("expired", len(expired)).Msg("matchmaking sweep")
	}
}

func (m *Manager) purgeOrphans(context.Context) {
	if n := m.games.PurgeOrphans(m.sessions.Exists); n > 0 {
		m.logger.Warn().Int("purged", n).Msg("orphaned game members removed")
	}
}

// heartbeat refreshes gauges and publishes the current totals.
func (m *Manager) heartbeat(ctx context.Context) {
	stats := m.games.Stats()
	m.metrics.SetGameStats(stats.Games, stats.Players, stats.Queued)

	cpuPct, memPct := m.sample()
	payload := events.HeartbeatPayload{
		Sessions:       m.sessions.Count(),
		Authenticated:  m.sessions.CountAuthenticated(),
		Games:          stats.Games,
		Queued:         stats.Queued,
		CPUPercent:     cpuPct,
		MemUsedPercent: memPct,
	}

	m.logger.Debug().
		Int("sessions", payload.Sessions).
		Int("games", payload.Games).
		Int("queued", payload.Queued).
		Float64("cpu_percent", cpuPct).
		Msg("heartbeat")

	if m.bus != nil {
		m.bus.Emit(ctx, events.Event{
			Type:    events.EventHeartbeat,
			Source:  "health",
			Payload: payload,
		})
	}
}

func sampleHost() (float64, float64) {
	cpuPct, err := util.GetCPUUsage()
	if err != nil {
		cpuPct = 0
	}
	var memPct float64
	if mem, err := util.GetMemoryUsage(); err == nil {
		memPct = mem.UsedPercent
	}
	return cpuPct, memPct
}
