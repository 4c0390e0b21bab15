package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/arkana-app/access-api/internal/config"
	"github.com/arkana-app/access-api/internal/handler"
	"github.com/arkana-app/access-api/internal/healthcheck"
	"github.com/arkana-app/access-api/internal/middleware"
	"github.com/arkana-app/access-api/internal/ratelimit"
	"github.com/arkana-app/access-api/internal/repository"
	"github.com/arkana-app/access-api/internal/service"
	"github.com/arkana-app/access-api/internal/storage"
	"github.com/arkana-app/access-api/internal/storeguard"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	redis    *storage.RedisClient
	postgres *storage.Postgres

	checker       *healthcheck.Checker
	requestLogger *middleware.RequestLogger
	limiters      []*ratelimit.MemoryLimiter
	retentionStop chan struct{}

	betaService      *service.BetaCodeService
	waveService      *service.WaveService
	authService      *service.AuthService
	analyticsService *service.AnalyticsService

	betaHandler      *handler.BetaHandler
	waveHandler      *handler.WaveHandler
	authHandler      *handler.AuthHandler
	analyticsHandler *handler.AnalyticsHandler

	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	betaRepo := repository.NewBetaCodeRepository(postgres)
	memberRepo := repository.NewWaveMemberRepository(postgres)
	adminRepo := repository.NewAdminUserRepository(postgres)
	logRepo := repository.NewRequestLogRepository(postgres)

	// One guard per capacity-bearing store path. Domain outcomes travel
	// the same call path but mean the store is healthy, so they must not
	// trip the breaker.
	guard := storeguard.New(storeguard.Config{
		IsFailure: func(err error) bool {
			switch {
			case errors.Is(err, repository.ErrUsesExhausted),
				errors.Is(err, repository.ErrDuplicateRedemption),
				errors.Is(err, repository.ErrBetaFull),
				errors.Is(err, repository.ErrDuplicateEmail),
				errors.Is(err, repository.ErrWaveFull):
				return false
			}
			return true
		},
	})

	betaService := service.NewBetaCodeService(betaRepo, guard, cfg.Beta.ProgramCap)
	waveService := service.NewWaveService(memberRepo, guard, cfg.Waves)
	authService := service.NewAuthService(adminRepo, cfg.Auth.JWTSecret, cfg.Auth.ExpiryHours)
	analyticsService := service.NewAnalyticsService(logRepo, betaService, waveService)

	checker := healthcheck.NewChecker(&healthcheck.Config{
		Dependencies: storeDependencies(postgres, redis),
	})

	s := &Server{
		router:           router,
		config:           cfg,
		redis:            redis,
		postgres:         postgres,
		checker:          checker,
		requestLogger:    middleware.NewRequestLogger(logRepo, 1000),
		retentionStop:    make(chan struct{}),
		betaService:      betaService,
		waveService:      waveService,
		authService:      authService,
		analyticsService: analyticsService,
		betaHandler:      handler.NewBetaHandler(betaService),
		waveHandler:      handler.NewWaveHandler(waveService),
		authHandler:      handler.NewAuthHandler(authService),
		analyticsHandler: handler.NewAnalyticsHandler(analyticsService),
	}

	s.setupMiddleware()
	s.setupRoutes()

	checker.Start()
	go s.retentionLoop()

	return s
}

// Request logs feed the analytics summary, not an audit trail, so they
// are trimmed after this many days.
const logRetentionDays = 30

func (s *Server) retentionLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			deleted, err := s.analyticsService.CleanupOldLogs(ctx, logRetentionDays)
			cancel()

			if err != nil {
				log.Error().Err(err).Msg("request log cleanup failed")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("trimmed old request logs")
			}
		case <-s.retentionStop:
			return
		}
	}
}

func storeDependencies(postgres *storage.Postgres, redis *storage.RedisClient) []healthcheck.Dependency {
	deps := []healthcheck.Dependency{
		{Name: "postgres", Ping: func(ctx context.Context) error { return postgres.Ping(ctx) }},
	}

	if redis != nil {
		deps = append(deps, healthcheck.Dependency{
			Name: "redis",
			Ping: func(ctx context.Context) error { return redis.Ping(ctx) },
		})
	}

	return deps
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
	s.router.Use(s.requestLogger.Handler())
}

// limit resolves the named rule to middleware. Unconfigured rules pass
// everything through, so routes can reference rules the deployment may or
// may not define.
func (s *Server) limit(name string) gin.HandlerFunc {
	rule := s.config.Rule(name)
	if rule == nil {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := ratelimit.NewLimiter(s.config.RateLimit.Store, s.redis, rule.Limit, rule.Window())
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		s.limiters = append(s.limiters, mem)
	}

	return middleware.RateLimit(*rule, limiter)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.Use(s.limit("api_general"))
	{
		api.POST("/beta/validate", s.limit("beta_validate"), s.betaHandler.Validate)
		api.GET("/waves/current", s.waveHandler.Current)
		api.POST("/waves/join", s.limit("wave_join"), s.waveHandler.Join)
	}

	s.router.POST("/admin/login", s.limit("admin_login"), s.authHandler.Login)

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.GET("/status", s.adminStatus)
		admin.GET("/me", s.authHandler.Me)
		admin.POST("/codes", s.betaHandler.CreateCode)
		admin.GET("/codes", s.betaHandler.ListCodes)
		admin.GET("/codes/:id", s.betaHandler.GetCode)
		admin.PATCH("/codes/:id", s.betaHandler.UpdateCode)
		admin.GET("/codes/:id/redemptions", s.betaHandler.ListCodeRedemptions)
		admin.GET("/redemptions", s.betaHandler.ListRedemptions)
		admin.GET("/members", s.waveHandler.ListMembers)
		admin.GET("/waves", s.waveHandler.ListWaves)
		admin.GET("/analytics/summary", s.analyticsHandler.Summary)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := s.checker.OverallHealth()

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "access-api",
		"timestamp": time.Now().Unix(),
		"checks":    s.checker.GetAllStatus(),
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	ctx := c.Request.Context()

	admitted, _ := s.betaService.MembersAdmitted(ctx)
	signups, _ := s.waveService.TotalMembers(ctx)

	c.JSON(http.StatusOK, gin.H{
		"service":          "access-api",
		"members_admitted": admitted,
		"program_cap":      s.betaService.ProgramCap(),
		"total_signups":    signups,
		"waves_configured": len(s.config.Waves),
		"uptime_seconds":   time.Since(startTime).Seconds(),
		"timestamp":        time.Now().Unix(),
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Info().Str("addr", addr).Str("environment", s.config.Server.Environment).
		Msg("starting access API")

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	s.checker.Stop()
	s.requestLogger.Stop()
	close(s.retentionStop)

	for _, limiter := range s.limiters {
		limiter.Stop()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
