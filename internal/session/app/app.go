package app

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

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/deactivation"
	httpapi "github.com/aussiebroadwan/tokenkeeper/internal/session/http"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/service"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store/drivers/postgres"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store/sqlstore"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/telemetry"
	"github.com/aussiebroadwan/tokenkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/tokenkeeper/pkg/jwtx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	serviceName = "tokenkeeper"
)

// deactivationBackend is both halves of the deactivation flag: the read
// side consulted on issue and the write side used by admins.
type deactivationBackend interface {
	service.DeactivationSource
	service.DeactivationFlags
}

// Application encapsulates the session service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db            *sqlstore.Store
	redis         *redis.Client
	deactivation  deactivationBackend
	meterProvider *sdkmetric.MeterProvider
	metrics       *telemetry.Metrics
	codec         *jwtx.Codec

	// Services
	sessionService *service.SessionService
	loginService   *service.LoginService
	adminService   *service.AdminService
	sweeper        *service.Sweeper

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: serviceName,
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	ctx := context.Background()

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initDeactivation(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.initTelemetry(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.bootstrap(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.sweeper.Start()

	app.logger.Info("tokenkeeper starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"deactivation", app.cfg.DeactivationBackend,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tokenkeeper...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.sweeper.Stop()

	// Flush the last metric interval before the exporter goes away
	if err := app.meterProvider.Shutdown(ctx); err != nil {
		app.logger.Error("error shutting down meter provider", "error", err)
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("tokenkeeper stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store driver and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  *sqlstore.Store
		err error
	)
	switch app.cfg.StoreDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL, postgres.Options{})
	default:
		db, err = sqlite.NewStore(app.cfg.DatabaseFile)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", db.Dialect())
	return nil
}

func (app *Application) initDeactivation(ctx context.Context) error {
	if app.cfg.DeactivationBackend != BackendRedis {
		app.deactivation = store.NewDeactivationAdapter(app.db, nil)
		return nil
	}

	app.redis = redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.redis.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.deactivation = deactivation.NewRedisSource(app.redis, deactivation.DefaultKeyPrefix)
	app.logger.Info("redis deactivation backend connected", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initTelemetry(ctx context.Context) error {
	mp, err := telemetry.NewMeterProvider(ctx, app.cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	otel.SetMeterProvider(mp)
	app.meterProvider = mp

	metrics, err := telemetry.NewMetrics(mp.Meter(telemetry.MeterName))
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = metrics
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Issuer:        app.cfg.Issuer,
		AccessSecret:  []byte(app.cfg.AccessTokenSecret),
		RefreshSecret: []byte(app.cfg.RefreshTokenSecret),
		AccessTTL:     app.cfg.AccessTokenTTL,
		RefreshTTL:    app.cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	app.sessionService = &service.SessionService{
		Store:        app.db,
		Codec:        codec,
		Deactivation: app.deactivation,
		Metrics:      app.metrics,
		StoreTimeout: app.cfg.StoreTimeout,
	}
	app.loginService = &service.LoginService{
		Store:    app.db,
		Sessions: app.sessionService,
	}

	app.sweeper = service.NewSweeper(
		app.db,
		app.logger,
		app.cfg.SweepInterval,
		app.cfg.PurgeInterval,
		app.cfg.PurgeRetention,
	)
	app.sweeper.Metrics = app.metrics

	app.adminService = &service.AdminService{
		Store:        app.db,
		Sessions:     app.sessionService,
		Deactivation: app.deactivation,
		Sweeper:      app.sweeper,
	}
	return nil
}

// bootstrap creates the first superadmin when configured to.
func (app *Application) bootstrap(ctx context.Context) error {
	if app.cfg.BootstrapLogin == "" {
		return nil
	}

	ctx = slogx.WithContext(ctx, app.logger)
	_, err := app.loginService.Bootstrap(ctx, app.cfg.BootstrapLogin, app.cfg.BootstrapPassword)
	switch {
	case errors.Is(err, service.ErrAlreadyBootstrapped):
		app.logger.Debug("bootstrap skipped, accounts exist")
		return nil
	case err != nil:
		return fmt.Errorf("failed to bootstrap superadmin: %w", err)
	}
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.SessionService = app.sessionService
	router.LoginService = app.loginService
	router.AdminService = app.adminService
	if app.redis != nil {
		router.DeactivationCheck = func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		}
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler exposes the wired router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }
