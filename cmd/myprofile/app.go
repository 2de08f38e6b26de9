package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/auth"
	"github.com/spec-kit/staff-profile/internal/config"
	"github.com/spec-kit/staff-profile/internal/events"
	"github.com/spec-kit/staff-profile/internal/observability"
	"github.com/spec-kit/staff-profile/internal/profileapi"
	"github.com/spec-kit/staff-profile/internal/service"
	"github.com/spec-kit/staff-profile/internal/session"
	"github.com/spec-kit/staff-profile/internal/view"
)

// app holds everything a command needs. It is built once per invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	store      session.CredentialStore
	closeStore func()
	decoder    *auth.Decoder
	sessions   *session.Loader

	in  io.Reader
	out io.Writer
}

func newApp(flags *pflag.FlagSet, in io.Reader, out io.Writer) (*app, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	store, closeStore, err := session.NewStore(*cfg, logger)
	if err != nil {
		return nil, err
	}

	decoder := auth.NewDecoder(cfg.Auth.JWTSecret)
	logger.Debug("client configured",
		zap.String("api", cfg.API.BaseURL),
		zap.String("store", cfg.Credential.Store),
		zap.Bool("verify_tokens", decoder.Verifying()),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    observability.NewMetrics(),
		store:      store,
		closeStore: closeStore,
		decoder:    decoder,
		sessions:   session.NewLoader(store, decoder, logger),
		in:         in,
		out:        out,
	}, nil
}

// controller wires a fresh profile controller with console notifications.
func (a *app) controller() *service.ProfileController {
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, view.NewConsoleNotifier(a.out), a.logger).RegisterHandlers()

	return service.NewProfileController(service.ProfileControllerDeps{
		Sessions:         a.sessions,
		API:              profileapi.NewClient(a.cfg.API, a.metrics, a.logger),
		Dispatcher:       dispatcher,
		Logger:           a.logger,
		PlaceholderImage: a.cfg.Profile.PlaceholderImage,
	})
}

func (a *app) close() {
	if a == nil {
		return
	}
	snap := a.metrics.Snapshot()
	a.logger.Debug("request metrics", zap.Any("requests", snap.Requests), zap.Any("errors", snap.Errors))
	a.closeStore()
	_ = a.logger.Sync()
}
