package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ovnlocal/lflow/internal/metrics"
	"github.com/ovnlocal/lflow/internal/ovnconfig"
)

const shutdownGrace = 5 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the translator, serving /metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ovnconfig.Load(cmd.Flags())
			if err != nil {
				return errors.Wrap(err, "load config")
			}

			log := ovnconfig.NewLogger(cfg.LogLevel)
			reg := prometheus.NewRegistry()
			t := buildTranslator(cfg, log, reg)

			t.refreshLocalDatapaths(cfg.LocalBridge, log)

			log.WithField("chassis", cfg.Chassis).Info("starting initial full translation cycle")
			t.runFullCycle()
			log.WithField("flows", t.sink.Len()).Info("initial cycle complete")

			srv := &http.Server{Addr: cfg.MetricsBindAddress, Handler: metrics.Handler(reg)}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Error("metrics server stopped unexpectedly")
				}
			}()
			log.WithField("addr", cfg.MetricsBindAddress).Info("serving metrics")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
