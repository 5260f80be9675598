package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vapay/internal/api"
	"vapay/internal/config"
	"vapay/internal/intake"
	"vapay/internal/listener"
	"vapay/internal/logger"
	"vapay/internal/messaging"
	"vapay/internal/reconcile"
	"vapay/internal/store"
)

const outboundMaxLen = 100000

func serveCmd() *cobra.Command {
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume bank streams and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			return serve(cmd.Context(), cfg, !noHTTP)
		},
	}

	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "only consume streams, do not start the HTTP API")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, withHTTP bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("main")

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	st := store.New(pool)

	feeCode, err := st.GetFeeCode(ctx, cfg.DefaultFeeCode)
	if err != nil {
		return fmt.Errorf("default fee code %s: %w", cfg.DefaultFeeCode, err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	out := listener.NewOutbound(messaging.NewPublisher(rdb, outboundMaxLen), cfg.Streams)
	vaStatus := reconcile.NewVAStatusReconciler(st, logger.WithComponent("va_status"))
	payments := reconcile.NewPaymentReconciler(st, out, logger.WithComponent("payment"))
	intakeSvc := intake.NewService(st, out, intake.Config{DefaultFeeCode: feeCode}, logger.WithComponent("intake"))

	consumer := messaging.NewConsumer(rdb, messaging.ConsumerOptions{
		Group:     cfg.Consumer.Group,
		Name:      cfg.Consumer.Name,
		Count:     cfg.Consumer.Count,
		Block:     cfg.Consumer.Block,
		ClaimIdle: cfg.Consumer.ClaimIdle,
	}, logger.WithComponent("consumer"))

	l := listener.New(consumer, logger.WithComponent("listener"))
	l.Register(cfg.Streams, listener.Services{
		VAStatus: vaStatus,
		Payments: payments,
		Intake:   intakeSvc,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(ctx)
	})

	if withHTTP {
		gin.SetMode(gin.ReleaseMode)
		srv := api.NewServer(st, vaStatus, payments, cfg.AuthToken, logger.WithComponent("api"))
		httpServer := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info().Str("addr", httpServer.Addr).Msg("listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	log.Info().
		Strs("streams", l.Streams()).
		Str("group", cfg.Consumer.Group).
		Str("consumer", cfg.Consumer.Name).
		Str("default_fee_code", feeCode.ID).
		Msg("vapay started")

	err = g.Wait()
	log.Info().Msg("vapay stopped")
	return err
}
