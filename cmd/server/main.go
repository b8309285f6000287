package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/staff_api/internal/events"
	"github.com/Skotchmaster/staff_api/internal/httpserver"
	"github.com/Skotchmaster/staff_api/internal/middleware"
	"github.com/Skotchmaster/staff_api/internal/observability"
	"github.com/Skotchmaster/staff_api/internal/repo"
	"github.com/Skotchmaster/staff_api/internal/search"
	"github.com/Skotchmaster/staff_api/internal/service"
	"github.com/Skotchmaster/staff_api/pkg/config"
	pkgdb "github.com/Skotchmaster/staff_api/pkg/db"
	"github.com/Skotchmaster/staff_api/pkg/logging"
	"github.com/Skotchmaster/staff_api/pkg/tokens"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("env file not loaded", "error", err)
	}

	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		log.Error("sentry init failed", "error", err)
	}
	defer observability.FlushSentry()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	defer func() {
		if err := pkgdb.Close(db); err != nil {
			log.Error("db close error", "error", err)
		}
	}()

	if err := repo.Migrate(db); err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	issuer, err := tokens.NewIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return fmt.Errorf("token issuer init: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		prod, err := events.NewProducer(cfg.KafkaBrokers, log.With("component", "kafka"))
		if err != nil {
			return fmt.Errorf("kafka init: %w", err)
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error("kafka close error", "error", err)
			}
		}()
		publisher = prod
	}

	var index service.PositionIndex
	if cfg.ESURL != "" {
		idx, err := search.Open(search.Config{
			URL:      cfg.ESURL,
			Username: cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		})
		if err != nil {
			log.Warn("elasticsearch unavailable, searching the database", "error", err)
		} else {
			index = idx
		}
	}

	gormRepo := repo.New(db)
	authSvc := &service.AuthService{Repo: gormRepo, Tokens: issuer, Events: publisher}

	bootCtx := logging.IntoContext(context.Background(), log)
	if err := authSvc.BootstrapAdmin(bootCtx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	e := httpserver.New(&httpserver.Deps{
		AuthHandler:      &httpserver.AuthHTTP{Svc: authSvc},
		UsersHandler:     &httpserver.UsersHTTP{Svc: &service.UserService{Repo: gormRepo, Auth: authSvc}},
		PositionsHandler: &httpserver.PositionsHTTP{Svc: &service.PositionService{Repo: gormRepo, Index: index}},
		Guard:            middleware.Guard(issuer),
		Ready:            func(ctx context.Context) error { return pkgdb.Ping(ctx, db) },
	}, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info("http server listening", "addr", addr, "env", cfg.Environment)
	return serve(e, addr, quit, log)
}

// serve runs e until a signal arrives on quit or the listener fails.
func serve(e *echo.Echo, addr string, quit <-chan os.Signal, log *slog.Logger) error {
	startErr := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startErr <- err
		}
	}()

	select {
	case err := <-startErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	go func() {
		<-quit
		log.Warn("force exit")
		os.Exit(1)
	}()

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
