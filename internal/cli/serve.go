package cli

import (
	"time"

	"github.com/spf13/cobra"

	"universe/internal/dateutil"
	appLog "universe/internal/log"
	"universe/internal/scheduler"
	"universe/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the cache warm-up scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = appLog.Sync() }()

			appLog.Info("effective config",
				"version", version,
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"cache_backend", cfg.Cache.Backend,
				"cache_path", cfg.Cache.Path,
				"refresh", cfg.RefreshCron,
				"upstream_timeout", cfg.Upstream.Timeout.String(),
				"metrics", cfg.Metrics.Enabled,
			)

			mgr, err := newManager(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			loc, _ := dateutil.ResolveLocation(cfg.Timezone)
			sched, err := scheduler.New(mgr, cfg.RefreshCron,
				scheduler.WithLocation(loc),
				scheduler.WithTimeout(cfg.Upstream.Timeout+5*time.Second),
			)
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
			defer func() { <-sched.Stop().Done() }()

			err = web.NewServer(cfg, mgr).Run(cmd.Context())
			appLog.Info("universe exiting")
			return err
		},
	}
}
