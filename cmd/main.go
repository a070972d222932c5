package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/ProSessionAcademy/prosessionacademy--sub001/internal/api/http"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/auth"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/config"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/metrics"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/ratelimit"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/repository"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/service"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/lib/logger/sl"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/lib/logger/slogpretty"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const limiterIdle = 10 * time.Minute

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	if cfg.Env == envProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mailboxes, err := setupMailboxes(ctx, cfg)
	if err != nil {
		log.Error("failed to set up mailbox store", sl.Err(err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	limiter := ratelimit.NewKeyedLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	signalService := service.NewSignalService(mailboxes, log, m, service.SignalOptions{
		IdleTTL:          cfg.Mailbox.IdleTTL,
		MaxMembers:       cfg.Mailbox.MaxMembers,
		ValidatePayloads: cfg.Mailbox.ValidatePayloads,
	})
	identityService := service.NewIdentityService(authenticator, cfg.Auth.AllowGuests, log)
	sweeper := service.NewSweeper(mailboxes, log, m, cfg.Mailbox.IdleTTL, cfg.Mailbox.SweepInterval)

	mw := httpapi.NewMiddleware(identityService, limiter, m, log, cfg.HTTP.MaxBodyBytes)
	signalController := httpapi.NewSignalController(
		signalService,
		cfg.WebRTC.STUNServers,
		cfg.HTTP.AllowedOrigins,
		limiter,
		m,
		log,
		cfg.HTTP.MaxBodyBytes,
	)
	authController := httpapi.NewAuthController(identityService)

	router := httpapi.SetupRouter(httpapi.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, mw, signalController, authController)

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting application",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("store", cfg.Mailbox.Store),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		return limiter.Run(gctx, time.Minute, limiterIdle)
	})

	if err := g.Wait(); err != nil {
		log.Error("application stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupMailboxes(ctx context.Context, cfg *config.Config) (repository.MailboxRepository, error) {
	switch cfg.Mailbox.Store {
	case config.StorePostgres:
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		repo := repository.NewPostgresMailboxRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return repository.NewInMemoryMailboxRepository(cfg.Mailbox.MaxSessions), nil
	}
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
