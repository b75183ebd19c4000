package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"steward/internal/config"
	"steward/internal/domain"
	"steward/internal/infra/db"
	"steward/internal/infra/events"
	"steward/internal/infra/policyrego"
	"steward/internal/infra/ratelimit"
	"steward/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	submitUC *usecase.SubmitAction
	revertUC *usecase.RevertAction

	audit    AuditStore
	settings SettingsStore
	rules    RuleStore

	adminAPIKey string
	initErr     error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool

	stuckAge time.Duration
	now      func() time.Time
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, now: func() time.Time { return time.Now().UTC() }}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Submit      *usecase.SubmitAction
	Revert      *usecase.RevertAction
	Audit       AuditStore
	Settings    SettingsStore
	Rules       RuleStore
	AdminAPIKey string
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:                 cfg,
		r:                   r,
		submitUC:            deps.Submit,
		revertUC:            deps.Revert,
		audit:               deps.Audit,
		settings:            deps.Settings,
		rules:               deps.Rules,
		adminAPIKey:         deps.AdminAPIKey,
		rateLimiter:         deps.RateLimiter,
		rateLimitRequests:   cfg.RateLimitRequests,
		rateLimitWindow:     cfg.RateLimitWindow(),
		rateLimitFailClosed: cfg.RateLimitFailClosed,
		stuckAge:            cfg.StuckEntryAge(),
		now:                 func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s
}

func (s *Server) initDeps() {
	cfg := s.cfg
	s.adminAPIKey = cfg.AdminAPIKey
	s.rateLimitRequests = cfg.RateLimitRequests
	s.rateLimitWindow = cfg.RateLimitWindow()
	s.rateLimitFailClosed = cfg.RateLimitFailClosed
	s.stuckAge = cfg.StuckEntryAge()

	if s.store == nil || s.store.DB == nil {
		return
	}

	auditRepo := db.NewAuditEntryRepository(s.store.DB)
	settingsRepo := db.NewSettingsRepository(s.store.DB)
	ruleRepo := db.NewPermissionRuleRepository(s.store.DB)
	rowRepo := db.NewRowRepository(s.store.DB)
	resolver := db.PrefixResolver{Prefix: cfg.CollectionTablePrefix}

	var publisher domain.EventPublisher = events.LogPublisher{}
	if cfg.RedisAddr != "" {
		redisPublisher, err := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.EventChannelPrefix)
		if err != nil {
			s.initErr = err
			return
		}
		publisher = redisPublisher
	}

	var guard domain.PolicyGuard
	if cfg.PolicyBundlePath != "" {
		engine, err := policyrego.NewEngineFromBundlePath(context.Background(), cfg.PolicyBundlePath)
		if err != nil {
			s.initErr = err
			return
		}
		guard = engine
	}

	evaluate := &usecase.EvaluateAction{
		Settings: settingsRepo,
		Rules:    ruleRepo,
		Window:   &usecase.RateWindow{Audit: auditRepo},
		Policy:   guard,
	}
	s.submitUC = &usecase.SubmitAction{
		Evaluate: evaluate,
		Audit:    auditRepo,
		Rows:     rowRepo,
		Resolver: resolver,
		Events:   publisher,
	}
	s.revertUC = &usecase.RevertAction{
		Audit:    auditRepo,
		Rows:     rowRepo,
		Resolver: resolver,
	}
	s.audit = auditRepo
	s.settings = settingsRepo
	s.rules = ruleRepo

	if cfg.RateLimitRequests > 0 {
		if cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
			if err != nil {
				s.initErr = err
				return
			}
			s.rateLimiter = limiter
		} else {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: cfg.RateLimitMaxKeys})
		}
	}

	if err := s.store.Migrate(); err != nil {
		s.initErr = err
		return
	}
	if err := settingsRepo.EnsureDefaults(context.Background(), seedSettings(cfg)); err != nil {
		s.initErr = err
		return
	}
	log.Printf("governance engine ready (table prefix %q)", cfg.CollectionTablePrefix)
}

func seedSettings(cfg config.Config) domain.GovernanceSettings {
	settings := domain.DefaultGovernanceSettings()
	settings.DefaultRequiresConfirmation = cfg.SeedDefaultRequiresConfirmation
	settings.UserRateLimitPerHour = cfg.SeedUserRateLimitPerHour
	settings.GlobalRateLimitPerHour = cfg.SeedGlobalRateLimitPerHour
	return settings
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/audit/:audit_id/revert", s.handleRevert)
		v1.GET("/audit/stuck", s.handleListStuck)
		v1.GET("/audit/:audit_id", s.handleGetAuditEntry)
		v1.GET("/audit", s.handleListAudit)

		v1.GET("/admin/settings", s.handleGetSettings)
		v1.PUT("/admin/settings", s.handleUpdateSettings)
		v1.GET("/admin/rules", s.handleListRules)
		v1.POST("/admin/rules", s.handleUpsertRule)
		v1.DELETE("/admin/rules/:rule_id", s.handleDeleteRule)
	}

	s.r.NoRoute(s.handleNoRoute)
}

// Colon-verb paths cannot be registered as gin routes, so they dispatch
// from NoRoute the same way the record/verify endpoints do upstream.
func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/v1/actions:submit" {
		s.handleSubmit(c)
		return
	}
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler exposes the router for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.r
}
