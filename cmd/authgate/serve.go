package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/auth-gate/internal/api/http"
	"github.com/spec-kit/auth-gate/internal/api/http/handlers"
	"github.com/spec-kit/auth-gate/internal/auth"
	"github.com/spec-kit/auth-gate/internal/persistence"
	"github.com/spec-kit/auth-gate/internal/repository"
	"github.com/spec-kit/auth-gate/internal/service"
	"github.com/spec-kit/auth-gate/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var skipPurge bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, !skipPurge)
		},
	}

	cmd.Flags().BoolVar(&skipPurge, "no-purge", false, "Do not run the expired token sweep in this process")

	return cmd
}

func serve(ctx context.Context, runPurge bool) error {
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	if rt.cfg.Postgres.RunMigrations && rt.postgres.Configured() {
		if err := persistence.RunMigrations(ctx, rt.postgres.PoolHandle(), rt.cfg.Postgres.MigrationsDir, logger); err != nil {
			return err
		}
	}

	tokens, err := newTokenManager(rt)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:   rt.users,
		TokenRepo:  rt.registry,
		Tokens:     tokens,
		Passwords:  auth.NewPasswordHasher(rt.cfg.Auth.BcryptCost),
		Dispatcher: rt.dispatcher,
		Logger:     logger,
	})
	gate := auth.NewGate(tokens, repository.NewUserDirectory(rt.users), rt.registry, auth.GateOptions{
		Logger:          logger.Named("gate"),
		Metrics:         rt.metrics,
		Events:          rt.dispatcher,
		RegistryTimeout: rt.cfg.Auth.RegistryTimeout(),
	})

	app := fiber.New(fiber.Config{
		AppName:               rt.cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, rt.metrics, rt.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(rt.cfg.App.Name, rt.cfg.App.Version, rt.cfg.Registry.Backend, rt.postgres, rt.redis),
		Auth:           handlers.NewAuthHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(gate, rt.metrics),
		Metrics:        rt.metrics,
	})

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	if runPurge {
		purger := worker.NewTokenPurgeWorker(rt.registry, logger, rt.metrics, rt.dispatcher, rt.cfg.Registry.PurgeInterval())
		go purger.Run(workerCtx)
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", rt.cfg.App.Addr()))
		listenErr <- app.Listen(rt.cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	cancelWorkers()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// newTokenManager uses the configured signing key. Development may run without
// one, in which case a random key is generated and tokens die with the process.
func newTokenManager(rt *runtimeDeps) (*auth.TokenManager, error) {
	secret := []byte(rt.cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		if !rt.cfg.App.IsDevelopment() {
			return nil, errors.New("AUTH_JWT_SECRET is required")
		}
		generated, err := auth.GenerateSecret()
		if err != nil {
			return nil, err
		}
		rt.logger.Warn("AUTH_JWT_SECRET not set; using a random signing key for this process")
		secret = generated
	}
	return auth.NewTokenManager(secret, rt.cfg.Auth.TokenTTL())
}
