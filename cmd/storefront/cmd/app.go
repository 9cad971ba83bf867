package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/adapter/outbound/memory"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/redisstore"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/rest"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/sqlitestore"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/state"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/service"
	"github.com/storefront-dev/storefront/internal/telemetry"
)

// app is the wired client for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	client   *rest.Client
	auth     *service.AuthSession
	cart     *service.CartSync
	catalog  *service.Catalog
	details  *service.ProductDetails
	checkout *service.Checkout
	history  *service.OrderHistory

	closers []func() error
	flush   telemetry.ShutdownFunc
}

// loadConfig loads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Flags win over file and environment.
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.API.BaseURL = baseURL
	}
	if flags.Changed("profile") {
		cfg.Session.Profile = profile
	}
	if devMode {
		cfg.DevMode = true
	}

	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to stderr; stdout is reserved for command output.
func newLogger(cfg *config.Config) *slog.Logger {
	logLevel := parseLogLevel(cfg.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newApp loads the configuration, wires every service and restores the
// persisted session. Callers must Close the app.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Debug("loaded config", "file", configFile)
	}

	flush, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "storefront",
		ServiceVersion: Version,
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
		Writer:         os.Stderr,
		MetricInterval: config.Duration(cfg.Telemetry.MetricInterval, telemetry.DefaultMetricInterval),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		flush:    flush,
	}

	store, err := a.openCredentialStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	var auth *service.AuthSession
	a.client = rest.NewClient(
		rest.WithBaseURL(cfg.API.BaseURL),
		rest.WithTimeout(config.Duration(cfg.API.Timeout, rest.DefaultTimeout)),
		rest.WithLogger(logger),
		rest.WithMetrics(rest.NewMetrics(a.registry)),
		rest.WithBreaker(rest.BreakerConfig{
			MaxFailures: cfg.API.Breaker.MaxFailures,
			OpenTimeout: config.Duration(cfg.API.Breaker.OpenTimeout, 30*time.Second),
		}),
		rest.WithCredentialSource(func() string { return auth.Credential() }),
		rest.WithUnauthorizedHandler(func(credential string) { auth.Invalidate(credential) }),
	)
	auth = service.NewAuthSession(store, a.client, service.WithSessionLogger(logger))
	a.auth = auth

	cartStore := service.NewCartStore(logger)
	unsubscribe := auth.Subscribe(func(t session.Transition) {
		if t.To == session.StateAnonymous {
			cartStore.Reset()
		}
	})
	a.closers = append(a.closers, func() error { unsubscribe(); return nil })

	a.cart = service.NewCartSync(a.client, cartStore, service.WithSyncLogger(logger))
	a.closers = append(a.closers, func() error { a.cart.Close(); return nil })
	a.catalog = service.NewCatalog(a.client, logger)
	a.details = service.NewProductDetails(a.client, a.cart, logger)
	a.checkout = service.NewCheckout(a.client, a.cart, logger)
	a.history = service.NewOrderHistory(a.client, auth)

	snap := auth.Initialize(ctx)
	logger.Debug("session restored", "state", snap.State.String(), "role", snap.Role().String())
	return a, nil
}

// openCredentialStore builds the store selected by session.store.
func (a *app) openCredentialStore(ctx context.Context) (session.CredentialStore, error) {
	spec, err := config.ParseStore(a.cfg.Session.Store)
	if err != nil {
		return nil, err
	}
	profile := a.cfg.Session.Profile

	switch spec.Kind {
	case config.StoreFile:
		return state.NewFileCredentialStore(spec.Target, profile, a.cfg.API.BaseURL, a.logger), nil
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, spec.Target, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StoreRedis:
		opts, err := redis.ParseURL(spec.Target)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		return redisstore.NewCredentialStore(client, profile, config.Duration(a.cfg.Session.TTL, 0)), nil
	default:
		return memory.NewCredentialStore(""), nil
	}
}

// requireLogin fails unless the restored session is authenticated.
func (a *app) requireLogin() error {
	if !a.auth.Snapshot().IsAuthenticated() {
		return errors.New("not logged in; run `storefront login` first")
	}
	return nil
}

// Close releases the stores and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	a.logRequestMetrics()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.flush != nil {
		errs = append(errs, a.flush(ctx))
	}
	return errors.Join(errs...)
}

// logRequestMetrics writes a per-operation request summary at debug level.
func (a *app) logRequestMetrics() {
	if a.registry == nil || !a.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Debug("failed to gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER || mf.GetName() != "storefront_backend_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			a.logger.Debug("backend requests", append(labelAttrs(m.GetLabel()), "count", m.GetCounter().GetValue())...)
		}
	}
}

func labelAttrs(pairs []*dto.LabelPair) []any {
	attrs := make([]any, 0, 2*len(pairs))
	for _, p := range pairs {
		attrs = append(attrs, p.GetName(), p.GetValue())
	}
	return attrs
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := contextOrBackground(cmd.Context())
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			a.logger.Warn("shutdown error", "error", err)
		}
	}()
	return fn(ctx, a)
}
