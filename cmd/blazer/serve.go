package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/blazer/internal/api"
	"github.com/energizer-project/blazer/internal/cli"
	"github.com/energizer-project/blazer/internal/config"
	"github.com/energizer-project/blazer/internal/db"
	"github.com/energizer-project/blazer/internal/events"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/handlers"
	"github.com/energizer-project/blazer/internal/health"
	"github.com/energizer-project/blazer/internal/metrics"
	"github.com/energizer-project/blazer/internal/network"
	"github.com/energizer-project/blazer/internal/notify"
	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/telemetry"
	"github.com/energizer-project/blazer/internal/util"
)

func serveCmd(configDir *string) *cobra.Command {
	var noConsole bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf(banner, version)
			fmt.Println()
			return serve(*configDir, !noConsole)
		},
	}
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "disable the interactive operator console")
	return cmd
}

// loadConfig reads configuration, reconfigures logging from it and
// validates it.
func loadConfig(configDir string) (*config.Config, error) {
	cfg, err := readConfig(configDir)
	if err != nil {
		return nil, err
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return nil, errors.New("configuration validation failed, please fix the errors above")
	}
	return cfg, nil
}

// readConfig is loadConfig without validation.
func readConfig(configDir string) (*config.Config, error) {
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging := cfg.GetLogging()
	logCfg := util.DefaultLogConfig()
	logCfg.Level = logging.Level
	logCfg.Directory = logging.Directory
	logCfg.Console = logging.Console
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*db.Database, *db.AccountStore, error) {
	dbCfg := cfg.GetDatabase()
	database, err := db.NewDatabase(dbCfg.Path)
	if err != nil {
		return nil, nil, err
	}

	apiCfg := cfg.GetAPI()
	store, err := db.NewAccountStore(ctx, database, db.StoreConfig{
		TokenSecret: apiCfg.TokenSecret,
		TokenTTL:    time.Duration(apiCfg.TokenTTLHours) * time.Hour,
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return database, store, nil
}

func serve(configDir string, console bool) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	logger := util.ComponentLogger("main")
	sysInfo := util.GetSystemInfo()
	logger.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("os", sysInfo.OS).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("starting Blazer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.GetDatabase().Seed {
		if _, err := store.Seed(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to seed demo accounts")
		}
	}

	srv := cfg.GetServer()
	gameCfg := cfg.GetGame()

	bus := events.NewEventBus()
	m := metrics.New()

	engine := game.NewEngine(game.Config{
		DefaultCapacity:    gameCfg.DefaultCapacity,
		MaxCapacity:        gameCfg.MaxCapacity,
		MinMatchPlayers:    gameCfg.MinMatchPlayers,
		MatchCapacity:      gameCfg.MatchCapacity,
		MatchmakingTimeout: config.Seconds(gameCfg.MatchmakingTimeoutSec),
	})
	sessions := session.NewManager(session.Config{
		OutboundQueue:   srv.OutboundQueue,
		MaxAuthFailures: srv.MaxAuthFailures,
		FlushTimeout:    config.Seconds(srv.FlushTimeoutSec),
	}, engine, store, bus)
	engine.SetObserver(sessions)
	engine.SetNotifier(notify.NewDispatcher(sessions, bus, m))

	rt := router.New(protocol.NewBodyParser(srv.MaxDepth), m)
	handlers.Register(rt, &handlers.Deps{
		Sessions:     sessions,
		Games:        engine,
		Inventory:    store,
		Tokens:       store,
		Metrics:      m,
		ServerName:   srv.Name,
		Version:      version,
		ClientConfig: srv.ClientConfig,
		PingPeriod:   time.Duration(srv.PingPeriodMillis) * time.Millisecond,
	})

	listenerCfg := network.ListenerConfig{
		Addr: srv.ListenAddr(),
		Conn: network.ConnConfig{
			MaxPayload:   srv.MaxPayloadBytes,
			IdleTimeout:  config.Seconds(srv.IdleTimeoutSec),
			WriteTimeout: config.Seconds(srv.WriteTimeoutSec),
			ReadBuffer:   srv.ReadBufferBytes,
		},
	}
	if srv.TLSEnabled {
		tlsCfg, err := util.ServerTLSConfig(srv.TLSCertFile, srv.TLSKeyFile)
		if err != nil {
			return err
		}
		listenerCfg.TLS = tlsCfg
	}
	tcpListener := network.NewTCPListener(listenerCfg, sessions, rt, m)

	healthMgr := health.NewManager(cfg.GetTimers(), config.Seconds(srv.IdleTimeoutSec), sessions, engine, bus, m)

	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetMQTT().Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg.GetMQTT(), bus, version)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	var apiServer *api.Server
	if cfg.GetAPI().Enabled {
		apiServer = api.NewServer(api.Options{
			Config:   cfg,
			Version:  version,
			Sessions: sessions,
			Games:    engine,
			Accounts: store,
			Metrics:  m,
		})
	}

	shutdownCh := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpListener.Start(ctx); err != nil {
			errCh <- fmt.Errorf("tcp listener: %w", err)
		}
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Int("port", cfg.GetAPI().Port).Msg("starting REST API server")
			if err := apiServer.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttHandler.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if console {
		// Not in the WaitGroup: the reader may stay blocked on stdin.
		go cli.NewCLI(os.Stdin, os.Stdout, bus, sessions, engine, store).Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		logger.Info().Msg("shutdown requested from console")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("critical error, initiating shutdown")
	}

	logger.Info().Msg("initiating graceful shutdown...")
	cancel()
	sessions.CloseAll("server shutdown")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	bus.Stop()
	logger.Info().Msg("Blazer stopped")
	return runErr
}
