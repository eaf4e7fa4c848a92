package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/dealerline/internal/crm"
	"github.com/szaher/dealerline/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the call-center HTTP API",
		Long: `Serve the call API, the CRM API, live call events (SSE) and Prometheus
metrics. Also runs the appointment reminder sweep and, when configured, hot
reloads the scoring lexicon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Server.APIKey == "" && !cfg.Server.NoAuth {
				logger.Warn("no API key configured, all /api requests will be rejected; set server.api_key or DEALERLINE_API_KEY")
			}

			srv := server.New(a.center,
				server.WithAPIKey(cfg.Server.APIKey),
				server.WithNoAuth(cfg.Server.NoAuth),
				server.WithRateLimit(cfg.Server.RateLimit),
				server.WithCRM(a.crm),
				server.WithHub(a.hub, cfg.Server.SSEKeepAlive),
				server.WithMetrics(a.metrics),
				server.WithVersion(version),
				server.WithLogger(logger),
			)

			var job *crm.ReminderJob
			if cfg.Reminders.Enabled {
				if job, err = crm.NewReminderJob(a.crm, cfg.Reminders.Schedule, logger); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer done()
				err := srv.Shutdown(shutdownCtx)
				a.endActive(shutdownCtx, "disconnected")
				return err
			})

			if job != nil {
				job.Start()
				g.Go(func() error {
					<-gctx.Done()
					stopCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
					defer done()
					job.Stop(stopCtx)
					return nil
				})
			}

			if cfg.Heuristics.Watch {
				g.Go(func() error {
					return a.estimator.Watch(gctx, cfg.Heuristics.LexiconPath)
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}
