// Package api is the HTTP status and account surface: public game listings,
// account registration and login, operator views of sessions and the
// matchmaking queue, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/blazer/internal/config"
	"github.com/energizer-project/blazer/internal/game"
	"github.com/energizer-project/blazer/internal/metrics"
	intnet "github.com/energizer-project/blazer/internal/network"
	"github.com/energizer-project/blazer/internal/session"
)

// Accounts is the account store as seen by the API.
type Accounts interface {
	session.Authenticator
	CreateAccount(ctx context.Context, email, persona, password string) (session.Account, error)
	IssueToken(ctx context.Context, id session.AccountID) (string, error)
}

// Server is the REST API server.
type Server struct {
	cfg      config.APIConfig
	logDir   string
	name     string
	version  string
	started  time.Time
	sessions *session.Manager
	games    *game.Engine
	accounts Accounts
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	limiter    *RateLimiter
	httpServer *http.Server
	router     *gin.Engine
}

// Options carries what the API reports and serves.
type Options struct {
	Config   *config.Config
	Version  string
	Sessions *session.Manager
	Games    *game.Engine
	Accounts Accounts
	Metrics  *metrics.Metrics
}

// NewServer creates the API server and builds its routes.
func NewServer(opts Options) *Server {
	if opts.Config.GetLogging().Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      opts.Config.GetAPI(),
		logDir:   opts.Config.GetLogging().Directory,
		name:     opts.Config.GetServer().Name,
		version:  opts.Version,
		started:  time.Now(),
		sessions: opts.Sessions,
		games:    opts.Games,
		accounts: opts.Accounts,
		metrics:  opts.Metrics,
		logger:   log.With().Str("component", "api").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured port and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.logger.Info().Str("addr", addr).Msg("REST API server starting")

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	go s.sweepLimiter(ctx)

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(10 * time.Minute); n > 0 {
				s.logger.Debug().Int("clients", n).Msg("rate limiter buckets swept")
			}
		}
	}
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders(s.name))

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	s.limiter = NewRateLimiter(s.cfg.RateLimitRPS)
	router.Use(s.limiter.Middleware())

	auth := NewAuthMiddleware(s.accounts, s.cfg.AdminToken)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/server_info", s.handleGetServerInfo)
		public.GET("/games", s.handleListGames)
		public.GET("/games/:id", s.handleGetGame)
	}

	account := router.Group("/api/auth")
	{
		account.POST("/register", s.handleRegister)
		account.POST("/login", s.handleLogin)
		account.GET("/me", auth.RequireAccount(), s.handleMe)
	}

	monitor := router.Group("/api/monitor")
	monitor.Use(auth.RequireOperator())
	{
		monitor.GET("/sessions", s.handleListSessions)
		monitor.POST("/sessions/:id/kick", s.handleKickSession)
		monitor.GET("/matchmaking", s.handleGetQueue)
		monitor.GET("/stats", s.handleGetStats)
		monitor.GET("/cpu_usage", s.handleGetCPUUsage)
		monitor.GET("/memory_usage", s.handleGetMemoryUsage)
		monitor.GET("/log_entries", s.handleGetLogEntries)
	}

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": s.name + " API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
