package main

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ovnlocal/lflow/internal/ovnconfig"
)

func newRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Force a single run_full translation cycle and report the result",
		Long: `Mirrors the original controller's external trigger for a full
recompute, used operationally when incremental state is suspected stale.
Without the ingestion layer (out of scope, spec.md §1) wired to a running
process, this forces one full cycle from a freshly built translator rather
than signaling an already-running daemon.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ovnconfig.Load(cmd.Flags())
			if err != nil {
				return errors.Wrap(err, "load config")
			}

			log := ovnconfig.NewLogger(cfg.LogLevel)
			t := buildTranslator(cfg, log, prometheus.NewRegistry())

			t.runFullCycle()
			log.WithField("flows", t.sink.Len()).Info("recompute complete")
			return nil
		},
	}
}
