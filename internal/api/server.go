// Package api implements the REST API for palrcon. Routes are grouped by the
// permission tier of the bearer token they require.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/db"
	"github.com/energizer-project/palrcon/internal/health"
	intnet "github.com/energizer-project/palrcon/internal/network"
	"github.com/energizer-project/palrcon/internal/server"
	"github.com/energizer-project/palrcon/internal/util"
)

// Default locations of the generated certificate when TLS is enabled
// without explicit files.
var (
	DefaultCertFile = filepath.Join(config.DefaultConfigDir, "tls", "api.crt")
	DefaultKeyFile  = filepath.Join(config.DefaultConfigDir, "tls", "api.key")
)

// Options carries the collaborators of the API. Monitor and Ledger may be
// nil; their routes then answer 503.
type Options struct {
	Config  *config.Config
	Manager *server.Manager
	Monitor *health.Monitor
	Ledger  *db.Ledger
	Version string
}

// Server is the REST API server.
type Server struct {
	cfg     *config.Config
	manager *server.Manager
	monitor *health.Monitor
	ledger  *db.Ledger
	version string
	logger  zerolog.Logger

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     opts.Config,
		manager: opts.Manager,
		monitor: opts.Monitor,
		ledger:  opts.Ledger,
		version: opts.Version,
		logger:  util.ComponentLogger("api"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.Snapshot().API
	addr := net.JoinHostPort(apiCfg.Bind, strconv.Itoa(apiCfg.Port))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var tlsConfig *tls.Config
	if apiCfg.TLSEnabled {
		var err error
		if tlsConfig, err = loadTLS(apiCfg); err != nil {
			return err
		}
	}

	ln, err := intnet.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.logger.Info().Str("addr", addr).Bool("tls", tlsConfig != nil).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func loadTLS(apiCfg config.APIConfig) (*tls.Config, error) {
	certFile, keyFile := apiCfg.TLSCertFile, apiCfg.TLSKeyFile
	if certFile == "" || keyFile == "" {
		certFile, keyFile = DefaultCertFile, DefaultKeyFile
		if err := util.EnsureSelfSignedCert(certFile, keyFile, apiCfg.Bind, "localhost"); err != nil {
			return nil, err
		}
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load API certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}, nil
}

func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.Snapshot().API

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must stay false while origins may be "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(apiCfg.RateLimitRPS).Middleware())

	auth := NewAuthMiddleware(s.cfg)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/status", s.handleStatus)
	}

	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	monitor := protected.Group("/monitor")
	monitor.Use(auth.RequirePermission(config.PermMonitor))
	{
		monitor.GET("/players", s.handlePlayers)
		monitor.GET("/players/history", s.handlePlayerHistory)
		monitor.GET("/moderation", s.handleModeration)
		monitor.GET("/unresolved", s.handleUnresolved)
		monitor.GET("/health", s.handleHealth)
	}

	control := protected.Group("/control")
	control.Use(auth.RequirePermission(config.PermControl))
	{
		control.POST("/broadcast", s.handleBroadcast)
		control.POST("/kick/:steam_id", s.handleKick)
		control.POST("/ban/:steam_id", s.handleBan)
		control.POST("/save", s.handleSave)
		control.POST("/shutdown", s.handleShutdown)
		control.POST("/doexit", s.handleDoExit)
		control.POST("/command", s.handleCommand)
		control.POST("/poll", s.handlePoll)
	}

	configure := protected.Group("/configure")
	configure.Use(auth.RequirePermission(config.PermConfigure))
	{
		configure.GET("/config", s.handleGetConfig)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "palrcon API is running"})
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
