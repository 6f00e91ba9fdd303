package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/sirw-engine/api"
	"github.com/warp/sirw-engine/config"
	"github.com/warp/sirw-engine/notify"
	"github.com/warp/sirw-engine/sirw"
	"github.com/warp/sirw-engine/store/sqlite"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP server port (default 8080)")
	return cmd
}

// serve runs the server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	countries := sirw.DefaultCountryPolicy()
	if cfg.Countries.File != "" {
		countries, err = sirw.LoadCountryPolicy(cfg.Countries.File)
		if err != nil {
			return err
		}
		logger.Info("country list loaded", zap.String("file", cfg.Countries.File))
	}

	svc := sirw.NewService(store, countries, cfg.Policy, logger)
	stored, err := svc.LoadPolicy(ctx)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	p := svc.Policy()
	logger.Info("policy active",
		zap.Bool("from_store", stored),
		zap.String("policy_file", cfg.PolicyFile),
		zap.Int("days_allowed", p.DaysAllowed),
		zap.Int("consecutive_limit", p.ConsecutiveLimit),
		zap.Int("proximity_days", p.ProximityDays))

	if cfg.Kafka.Enabled() {
		pub := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer pub.Close()
		svc.Publisher = pub
		logger.Info("publishing decisions to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		svc.Publisher = notify.NewLogPublisher(logger)
	}

	scheduler := api.NewCompletionScheduler(svc, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(api.NewHandler(svc, logger), api.RouterOptions{
		CORSOrigins:     cfg.Server.CORSOrigins,
		SubmitPerMinute: cfg.RateLimit.PerMinute,
		SubmitBurst:     cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("db", cfg.DB.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
