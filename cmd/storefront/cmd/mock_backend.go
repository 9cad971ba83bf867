package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/adapter/inbound/http"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/memory"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/internal/domain/ratelimit"
	"github.com/storefront-dev/storefront/internal/fakeapi"
)

var (
	mockAddr   string
	mockNoSeed bool
)

var mockBackendCmd = &cobra.Command{
	Use:   "mock-backend",
	Short: "Run an in-memory storefront backend",
	Long: `Run an in-memory implementation of the storefront REST API for local use
and demos. State is lost when the process exits.

Unless --no-seed is given the backend starts with demo products and two
accounts:
  admin@example.com     / admin-password
  customer@example.com  / customer-password

Logins are throttled per client address (mock_backend.logins_per_minute).
Prometheus metrics are served on /metrics and a health check on /health.`,
	Args: cobra.NoArgs,
	RunE: runMockBackend,
}

func init() {
	mockBackendCmd.Flags().StringVar(&mockAddr, "addr", "", "listen address (overrides mock_backend.addr)")
	mockBackendCmd.Flags().BoolVar(&mockNoSeed, "no-seed", false, "start without demo data")
	rootCmd.AddCommand(mockBackendCmd)
}

func runMockBackend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.MockBackend.Addr = mockAddr
	}
	logger := newLogger(cfg)

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), gracefulSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	opts := []fakeapi.Option{
		fakeapi.WithLogger(logger),
		fakeapi.WithTokenTTL(config.Duration(cfg.MockBackend.TokenTTL, fakeapi.DefaultTokenTTL)),
	}
	if cfg.MockBackend.Secret != "" {
		opts = append(opts, fakeapi.WithSecret([]byte(cfg.MockBackend.Secret)))
	}
	backend := fakeapi.New(opts...)
	if cfg.MockBackend.SeedEnabled() && !mockNoSeed {
		if err := backend.SeedDemo(); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		st := backend.Stats()
		logger.Info("seeded demo data", "products", st.Products, "users", st.Users)
	}

	limiter := memory.NewLimiter(memory.WithLimiterLogger(logger))
	go limiter.Run(ctx, time.Minute)

	srv := http.NewServer(backend,
		http.WithAddr(cfg.MockBackend.Addr),
		http.WithLoginLimit(limiter, ratelimit.PerMinute(cfg.MockBackend.LoginsPerMinute, cfg.MockBackend.LoginBurst)),
		http.WithAllowedOrigins(cfg.MockBackend.AllowedOrigins),
		http.WithVersion(Version),
		http.WithLogger(logger),
	)
	addr, err := srv.Listen()
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.MockBackend.Addr, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mock backend listening on http://%s (Ctrl+C to stop)\n", addr)

	return srv.Start(ctx)
}

// contextOrBackground guards commands executed without ExecuteContext.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
