package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/mithaqapp/mithaq/internal/app"
	iauth "github.com/mithaqapp/mithaq/internal/auth"
	"github.com/mithaqapp/mithaq/internal/auth/twofactor"
	"github.com/mithaqapp/mithaq/internal/handlers"
	"github.com/mithaqapp/mithaq/internal/middleware"
	"github.com/mithaqapp/mithaq/internal/services"
	"github.com/mithaqapp/mithaq/pkg/mail"
)

// Services bundles the constructed service graph the router mounts handlers on.
type Services struct {
	JWT      *iauth.JWTService
	Sessions *iauth.SessionService
	Login    *iauth.LoginService
	Codes    *twofactor.Service
	Devices  *services.TrustedDeviceService
	Audit    *services.AuditService
	Settings *services.TwoFactorService
}

// BuildServices wires the full authentication service graph from configuration.
func BuildServices(db *gorm.DB, cfg *app.Config, mailer mail.Mailer) (*Services, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("build jwt service: %w", err)
	}

	sessions, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("build session service: %w", err)
	}

	verifier, err := iauth.NewCredentialVerifier(db, cfg.Auth.CredentialConfig())
	if err != nil {
		return nil, fmt.Errorf("build credential verifier: %w", err)
	}

	codes, err := twofactor.NewService(db, mailer, cfg.TwoFactor.CodeServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("build two-factor service: %w", err)
	}

	devices, err := services.NewTrustedDeviceService(db, cfg.TwoFactor.TrustedDeviceConfig())
	if err != nil {
		return nil, fmt.Errorf("build trusted device service: %w", err)
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, fmt.Errorf("build audit service: %w", err)
	}

	login, err := iauth.NewLoginService(verifier, sessions, jwtSvc, codes, devices, audit)
	if err != nil {
		return nil, fmt.Errorf("build login service: %w", err)
	}

	settings, err := services.NewTwoFactorService(db, codes, devices, audit)
	if err != nil {
		return nil, fmt.Errorf("build settings service: %w", err)
	}

	return &Services{
		JWT:      jwtSvc,
		Sessions: sessions,
		Login:    login,
		Codes:    codes,
		Devices:  devices,
		Audit:    audit,
		Settings: settings,
	}, nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, cfg *app.Config, svc *Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svc == nil {
		return nil, fmt.Errorf("services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(100, time.Minute))

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}

	authHandler := handlers.NewAuthHandler(db, svc.Login, svc.Sessions)
	securityHandler := handlers.NewSecurityHandler(svc.Settings, svc.Devices)

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/two-factor/verify", authHandler.VerifyTwoFactor)
		auth.POST("/two-factor/resend", authHandler.ResendCode)
		auth.POST("/refresh", authHandler.Refresh)
	}

	requireAuth := middleware.Auth(svc.JWT)

	api := r.Group("/api")
	api.Use(requireAuth)

	// Authenticated auth routes
	api.GET("/auth/me", authHandler.Me)
	api.POST("/auth/logout", authHandler.Logout)

	// Two-factor settings and trusted devices
	sec := api.Group("/security")
	{
		sec.POST("/two-factor/enable", securityHandler.BeginEnable)
		sec.POST("/two-factor/enable/confirm", securityHandler.ConfirmEnable)
		sec.POST("/two-factor/disable", securityHandler.BeginDisable)
		sec.POST("/two-factor/disable/confirm", securityHandler.ConfirmDisable)
		sec.GET("/devices", securityHandler.ListDevices)
		sec.DELETE("/devices", securityHandler.RevokeAllDevices)
		sec.DELETE("/devices/:id", securityHandler.RevokeDevice)
	}

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
