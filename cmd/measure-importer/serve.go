package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/measure-importer/internal/config"
	"github.com/ehr/measure-importer/internal/measure"
	"github.com/ehr/measure-importer/internal/platform/auth"
	"github.com/ehr/measure-importer/internal/platform/db"
	"github.com/ehr/measure-importer/internal/platform/middleware"
	"github.com/ehr/measure-importer/internal/platform/openapi"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the extraction API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: every request is treated as admin")
	}

	ctx := context.Background()
	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info().Str("schema", cfg.DBSchema).Msg("measure storage enabled")
	} else {
		logger.Info().Msg("DATABASE_URL not set, measure storage disabled")
	}

	imp, err := newImporter(nil, cfg, importerFlags{}, logger)
	if err != nil {
		return err
	}
	var repo measure.MeasureRepository
	if pool != nil {
		repo = measure.NewMeasureRepoPG(pool)
	}
	svc := measure.NewService(imp, repo, logger)

	e := newServer(cfg, logger, svc, pool)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("profile", string(imp.Profile())).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires middleware and routes. pool may be nil.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *measure.Service, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		}))
	}
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"storage": svc.StorageEnabled(),
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	openapi.NewGenerator(version, "/api", svc.StorageEnabled()).RegisterRoutes(e.Group("/api"))

	api := e.Group("/api/v1")
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: cfg.SigningKey(),
		}))
	}
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	measure.NewHandler(svc, cfg.FilterRecords).RegisterRoutes(api)
	return e
}
