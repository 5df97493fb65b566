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

	httpapi "github.com/castellan/authd/internal/authd/http"
	"github.com/castellan/authd/internal/authd/notify"
	"github.com/castellan/authd/internal/authd/service"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/internal/authd/store/drivers/sqlite"
	"github.com/castellan/authd/pkg/cryptox"
	"github.com/castellan/authd/pkg/jwtx"
	"github.com/castellan/authd/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the auth service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db    store.Store
	codec *jwtx.Codec

	authService         *service.AuthService
	mfaService          *service.MFAService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authd",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	codec, err := jwtx.NewCodec([]byte(cfg.AccessSecret), []byte(cfg.RefreshSecret), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start(context.Background())

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown gracefully stops the server, monitors, and housekeeping before
// closing the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.authService.Close()
	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	var sender notify.Sender
	if app.cfg.ResendAPIKey != "" {
		sender = notify.NewResendSender(app.cfg.ResendAPIKey, app.cfg.EmailFrom)
	} else {
		app.logger.Warn("no Resend API key configured, verification codes will be logged")
		sender = notify.LogSender{}
	}

	limiter := &service.RateLimiter{Store: app.db}
	otp := &service.OTPService{Store: app.db, Sender: sender}
	totp := &service.TOTPVerifier{Issuer: app.cfg.Issuer}

	app.mfaService = &service.MFAService{
		Store: app.db,
		TOTP:  totp,
		OTP:   otp,
	}

	app.authService = &service.AuthService{
		Store:           app.db,
		Credentials:     &service.CredentialVerifier{Store: app.db, Limiter: limiter},
		MFA:             app.mfaService,
		Tokens:          &service.TokenService{Store: app.db, Codec: app.codec},
		OTP:             otp,
		Limiter:         limiter,
		Audit:           &service.AuditRecorder{Store: app.db},
		Codec:           app.codec,
		MonitorInterval: app.cfg.MonitorInterval,
	}

	app.housekeepingService = &service.HousekeepingService{
		Store:    app.db,
		Interval: app.cfg.HousekeepingInterval,
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.codec, BuildVersion, app.db, app.logger)
	router.AuthService = app.authService
	router.MFAService = app.mfaService
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}
