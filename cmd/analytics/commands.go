package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"onchain-analytics/internal/analytics"
	"onchain-analytics/internal/config"
	"onchain-analytics/internal/logger"
	"onchain-analytics/internal/messaging"
	"onchain-analytics/internal/observability"
	"onchain-analytics/internal/reporting"
	"onchain-analytics/internal/solana"
	pgstore "onchain-analytics/internal/storage/postgres"
	"onchain-analytics/internal/storage/migrations"
	"onchain-analytics/internal/watch"
)

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newWalletCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "wallet <address>",
		Short: "Trade history and P&L of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(analytics.Query{Wallet: args[0]}, format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "token <mint>",
		Short: "Holder census and early buyers of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(analytics.Query{Mint: args[0]}, format)
		},
	}
	addFormatFlag(cmd, &format)
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		q      analytics.Query
		format string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Full report for a wallet, a token or both",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(q, format)
		},
	}
	cmd.Flags().StringVar(&q.Wallet, "wallet", "", "wallet address")
	cmd.Flags().StringVar(&q.Mint, "mint", "", "token mint address")
	addFormatFlag(cmd, &format)
	return cmd
}

func addFormatFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "format", "f", string(reporting.FormatJSON), "output format: json, markdown or csv")
}

// runReport computes one report and prints it. Failed metrics are part of
// the report; only an invalid query fails the command.
func runReport(q analytics.Query, format string) error {
	f, err := reporting.ParseFormat(format)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.Analyze(ctx, q)
	if err != nil {
		return err
	}
	return reporting.Write(os.Stdout, report, f)
}

func newRescanCmd() *cobra.Command {
	var (
		req     messaging.RescanRequest
		viaNATS bool
	)
	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Drop cached results so the next request recomputes them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if viaNATS {
				return publishRescan(ctx, req)
			}

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.engine.Rescan(ctx, req.Wallet, req.Mint, "cli"); err != nil {
				return err
			}
			log.Info("rescan applied", zap.String("wallet", req.Wallet), zap.String("mint", req.Mint))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Wallet, "wallet", "", "wallet address")
	cmd.Flags().StringVar(&req.Mint, "mint", "", "token mint address")
	cmd.Flags().BoolVar(&viaNATS, "via-nats", false, "send the request to running servers over NATS")
	return cmd
}

func publishRescan(ctx context.Context, req messaging.RescanRequest) error {
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("analytics-cli"),
		nats.Timeout(cfg.NATS.ConnectTimeout),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer conn.Close()

	if err := messaging.PublishRescan(ctx, conn, cfg.NATS.Subject, req); err != nil {
		return err
	}
	log.Info("rescan acknowledged", zap.String("wallet", req.Wallet), zap.String("mint", req.Mint))
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics, apply NATS rescans and watch configured mints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.NATS.Enabled {
		sub := messaging.NewRescanSubscriber(a.engine, messaging.Options{
			URL:            cfg.NATS.URL,
			Subject:        cfg.NATS.Subject,
			QueueGroup:     cfg.NATS.QueueGroup,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
			Logger:         logger.WithComponent(log, "nats"),
		})
		if err := sub.Connect(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return sub.Close()
		})
	}

	if len(cfg.Watch.Mints) > 0 {
		ws, err := solana.NewWSClient(gctx, cfg.Solana.WSEndpoint, nil, logger.WithComponent(log, "ws"))
		if err != nil {
			return fmt.Errorf("connect websocket: %w", err)
		}
		w := watch.New(ws, a.engine, watch.Options{
			Mints:    cfg.Watch.Mints,
			Debounce: cfg.Watch.Debounce,
			Logger:   log,
		})
		g.Go(func() error {
			defer ws.Close()
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	log.Info("analytics server started",
		zap.String("env", cfg.App.Env),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Int("watched_mints", len(cfg.Watch.Mints)),
	)
	err = g.Wait()
	log.Info("analytics server stopped")
	return err
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres and ClickHouse schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if cfg.Cache.Backend == config.BackendPostgres {
				pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
				if err != nil {
					return err
				}
				defer pool.Close()
				applied, err := migrations.RunPostgresMigrations(ctx, pool)
				if err != nil {
					return err
				}
				log.Info("postgres migrations applied", zap.Strings("versions", applied))
			}

			if cfg.ClickHouse.Enabled {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
				if err != nil {
					return err
				}
				defer conn.Close()
				log.Info("clickhouse migrations applied")
			}
			return nil
		},
	}
}
