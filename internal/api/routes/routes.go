package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/api/handlers"
	"github.com/tillpoint/controlplane/internal/api/middleware"
	"github.com/tillpoint/controlplane/internal/config"
	"github.com/tillpoint/controlplane/internal/guard"
	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/permissions"
	"github.com/tillpoint/controlplane/internal/services"
)

// Services holds every long-lived dependency of the API. The caller owns
// its lifetime and must call Close on shutdown.
type Services struct {
	DB       *gorm.DB
	Config   config.Config
	Registry *prometheus.Registry

	Audit     *services.AuditService
	Security  *services.SecurityEventService
	MFA       *services.MFAService
	Sessions  *services.SessionStore
	Accounts  *services.AccountService
	Auth      *services.AuthService
	Tenants   *services.TenantService
	Alerts    *services.AlertService
	AllowList *guard.AllowList
	Limiter   *middleware.RateLimiter
}

// Build constructs the services from cfg over db.
func Build(db *gorm.DB, cfg config.Config) (*Services, error) {
	allow, err := guard.NewAllowList(cfg.AdminAllowList)
	if err != nil {
		return nil, fmt.Errorf("admin allow-list: %w", err)
	}

	var store services.AlertStore
	switch cfg.Alerts.Store {
	case "memory":
		store = services.NewMemoryAlertStore()
	default:
		store = services.NewGormAlertStore(db)
	}
	var notifier services.AlertNotifier
	if len(cfg.Alerts.NotifyURLs) > 0 {
		notifier = services.NewShoutrrrNotifier(cfg.Alerts.NotifyURLs, models.AlertSeverity(cfg.Alerts.NotifyMinSeverity))
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	audit := services.NewAuditService(db)
	sessions := services.NewSessionStore(cfg.SessionTTL)
	mfa := services.NewMFAService(db, audit, cfg.MFA.Issuer)

	return &Services{
		DB:        db,
		Config:    cfg,
		Registry:  registry,
		Audit:     audit,
		Security:  services.NewSecurityEventService(db, audit, cfg.Security.SuspiciousWindow, cfg.Security.SuspiciousThreshold),
		MFA:       mfa,
		Sessions:  sessions,
		Accounts:  services.NewAccountService(db, sessions),
		Auth:      services.NewAuthService(db, cfg, audit, mfa, sessions),
		Tenants:   services.NewTenantService(db),
		Alerts:    services.NewAlertService(store, services.NewGormLicenseSource(db), notifier),
		AllowList: allow,
		Limiter:   middleware.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst),
	}, nil
}

// Close drops every open session.
func (s *Services) Close() {
	s.Sessions.Close()
}

// Register mounts the API under /api/v1. The allow-list runs first, then
// authentication, then the permission gate of each route.
func Register(router *gin.Engine, s *Services) {
	api := router.Group("/api/v1")
	api.Use(s.AllowList.Middleware())

	api.GET("/health", handlers.HealthHandler(s.DB))
	api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	authHandler := handlers.NewAuthHandler(s.Auth, s.Accounts, s.Audit, s.Config.SessionTTL, s.Config.IsProduction())
	mfaHandler := handlers.NewMFAHandler(s.MFA)
	auditHandler := handlers.NewAuditHandler(s.Audit)
	securityHandler := handlers.NewSecurityHandler(s.Security)
	alertHandler := handlers.NewAlertHandler(s.Alerts, s.Audit, s.Config.Alerts.ExpiryHorizon)
	userHandler := handlers.NewUserHandler(s.Accounts, s.MFA, s.Audit)
	tenantHandler := handlers.NewTenantHandler(s.Tenants, s.Audit)

	throttle := s.Limiter.Middleware()
	api.POST("/auth/login", throttle, authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(s.Auth))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)
		protected.POST("/auth/change-password", authHandler.ChangePassword)

		protected.POST("/mfa/setup", mfaHandler.Setup)
		protected.POST("/mfa/verify", throttle, mfaHandler.Verify)
		protected.POST("/mfa/disable", mfaHandler.Disable)

		protected.GET("/audit-logs", middleware.RequirePermission(permissions.AuditRead), auditHandler.List)

		protected.GET("/security/events", middleware.RequirePermission(permissions.SecurityRead), securityHandler.Events)
		protected.GET("/security/suspicious-origins", middleware.RequirePermission(permissions.SecurityRead), securityHandler.SuspiciousOrigins)

		protected.GET("/alerts", middleware.RequirePermission(permissions.AlertsRead), alertHandler.List)
		protected.POST("/alerts", middleware.RequirePermission(permissions.AlertsCreate), alertHandler.Create)
		protected.POST("/alerts/scan", middleware.RequirePermission(permissions.AlertsCreate), alertHandler.Scan)
		protected.PATCH("/alerts/:id/status", middleware.RequirePermission(permissions.AlertsUpdate), alertHandler.UpdateStatus)
		protected.DELETE("/alerts/:id", middleware.RequirePermission(permissions.AlertsDelete), alertHandler.Delete)

		protected.GET("/users", middleware.RequirePermission(permissions.UsersRead), userHandler.List)
		protected.POST("/users", middleware.RequirePermission(permissions.UsersCreate), userHandler.Create)
		protected.PUT("/users/:id", middleware.RequirePermission(permissions.UsersUpdate), userHandler.Update)
		protected.DELETE("/users/:id", middleware.RequirePermission(permissions.UsersDelete), userHandler.Delete)
		protected.DELETE("/users/:id/mfa", middleware.RequirePermission(permissions.UsersUpdate), userHandler.ResetMFA)

		protected.GET("/tenants", middleware.RequirePermission(permissions.TenantsRead), tenantHandler.List)
		protected.DELETE("/tenants/:id", middleware.RequirePermission(permissions.TenantsDelete), tenantHandler.Delete)
		protected.GET("/licenses", middleware.RequirePermission(permissions.LicensesRead), tenantHandler.ListLicenses)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	logger.Log().WithField("allowlist", s.AllowList.Entries()).Info("API routes registered")
}
