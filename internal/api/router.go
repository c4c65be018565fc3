package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adamscao/ovpnbot/internal/api/handlers"
	"github.com/adamscao/ovpnbot/internal/api/middleware"
	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/auth"
	"github.com/adamscao/ovpnbot/internal/config"
	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the services the API exposes. Audit, Issuances and
// Failures are nil when no database is configured; the audit routes are
// then not registered.
type Dependencies struct {
	Creator      handlers.UserCreator
	Catalog      handlers.Catalog
	Certificates handlers.CertificateInspector
	Trail        *audit.Trail
	Audit        handlers.AuditLister
	Issuances    IssuanceStore
	Failures     middleware.FailureCounter
	Logger       logging.Logger
}

// IssuanceStore reads issuance records
type IssuanceStore interface {
	handlers.IssuanceLookup
	handlers.IssuanceLister
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	logger logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))

	var issuanceLookup handlers.IssuanceLookup
	if deps.Issuances != nil {
		issuanceLookup = deps.Issuances
	}
	userHandler := handlers.NewUserHandler(deps.Creator, deps.Catalog, deps.Certificates, issuanceLookup, deps.Trail)

	verifier := auth.NewAdminVerifier(auth.AdminCredentials{
		Token:      cfg.Admin.Token,
		TokenHash:  cfg.Admin.TokenHash,
		TOTPSecret: cfg.Admin.TOTPSecret,
	})

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Admin endpoints (require admin token)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(middleware.AdminAuthConfig{
			Verifier:    verifier,
			Trail:       deps.Trail,
			Failures:    deps.Failures,
			MaxFailures: cfg.Admin.MaxAuthFailures,
		}))
		{
			admin.POST("/users", userHandler.CreateUser)
			admin.GET("/users", userHandler.ListUsers)
			admin.GET("/users/:username/config", userHandler.DownloadConfig)
			admin.GET("/users/:username/certificate", userHandler.GetCertificate)

			if deps.Audit != nil && deps.Issuances != nil {
				auditHandler := handlers.NewAuditHandler(deps.Audit, deps.Issuances)
				admin.GET("/audit", auditHandler.ListAudit)
				admin.GET("/issuances", auditHandler.ListIssuances)
			}
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	return &Server{
		router: router,
		config: cfg,
		logger: deps.Logger,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "admin API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("admin API failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down admin API: %w", err)
	}
	return nil
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
