package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carson-networks/warp-server/api"
	"github.com/carson-networks/warp-server/internal/config"
	"github.com/carson-networks/warp-server/internal/events"
	"github.com/carson-networks/warp-server/internal/logging"
	"github.com/carson-networks/warp-server/internal/payment/chillpay"
	"github.com/carson-networks/warp-server/internal/service"
	"github.com/carson-networks/warp-server/internal/storage"
	"github.com/carson-networks/warp-server/internal/storage/migrations"
)

func main() {
	logger := logging.SetupLogging()

	root := &cobra.Command{
		Use:          "warp-server",
		Short:        "Paid display queue for the warp screen",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logger)
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and payment reconciler",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migrate(logger)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("warp-server exited")
		stop()
		os.Exit(1)
	}
}

func loadConfig(logger *logrus.Logger) (*config.Config, error) {
	env, err := config.ProcessEnvironmentVariables()
	if err != nil {
		return nil, err
	}
	logging.SetLevel(logger, env.LogLevel)
	return env, nil
}

func migrate(logger *logrus.Logger) error {
	env, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if env.StorageDriver != config.StorageDriverPostgres {
		return errors.New("migrate requires STORAGE_DRIVER=postgres")
	}

	store, err := storage.NewStorage(env)
	if err != nil {
		return err
	}
	defer store.Close()

	return migrations.Up(store.DB, logger)
}

func serve(ctx context.Context, logger *logrus.Logger) error {
	env, err := loadConfig(logger)
	if err != nil {
		return err
	}
	logger.WithField("storage", env.StorageDriver).Info("warp-server starting")

	store, err := storage.NewStorage(env)
	if err != nil {
		return err
	}
	defer store.Close()

	if store.DB != nil {
		if err := migrations.Up(store.DB, logger); err != nil {
			return err
		}
	}

	gateway := chillpay.NewClient(chillpay.Config{
		BaseURL:       env.ChillPayBaseURL,
		MerchantCode:  env.ChillPayMerchantCode,
		APIKey:        env.ChillPayAPIKey,
		MD5Secret:     env.ChillPayMD5Secret,
		WebhookSecret: env.ChillPayWebhookSecret,
		PaymentLimit:  env.ChillPayPaymentLimit,
		LinkTTL:       env.ChillPayLinkTTL,
		Logger:        logger,
	})
	if !gateway.Configured() {
		logger.Warn("ChillPay credentials missing, transactions will be created as paid")
	}
	if env.AdminAPIToken == "" {
		logger.Warn("ADMIN_API_TOKEN is empty, admin routes are unauthenticated")
	}

	svc := service.NewService(store, service.Options{
		Gateway: gateway,
		Bus:     events.NewBus(16),
		Logger:  logger,
		Reconcile: service.ReconcilerConfig{
			Interval:  env.ReconcileInterval,
			BatchSize: env.ReconcileBatchSize,
			MaxErrors: env.ReconcileMaxErrors,
		},
	})

	rest := api.Rest{
		Logger:          logger,
		Port:            env.HTTPPort,
		AdminToken:      env.AdminAPIToken,
		StreamHeartbeat: env.StreamHeartbeat,
		Service:         svc,
		Storage:         store,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return rest.Serve(gctx) })
	group.Go(func() error { return svc.Reconciler.Run(gctx) })
	return group.Wait()
}
