package main

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
	"github.com/banking/audit-risk-service/internal/repository/postgres"
)

func newRecomputeAllCommand(opts *rootOptions) *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "recompute-all",
		Short: "Recalculate every auditable area with the current weights",
		Long: "Recalculates the derived risk fields and priority of every area. Each area\n" +
			"commits on its own; manually overridden priorities are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if a.cfg.Batch.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Batch.Timeout)
				defer cancel()
			}

			result, err := a.engine.RecomputeAll(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}

			if failOnError && (result.Failed > 0 || result.Skipped > 0) {
				return goerr.New("recompute finished with failures",
					goerr.V("failed", result.Failed), goerr.V("skipped", result.Skipped))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", true, "exit non-zero when any area failed or was skipped")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return goerr.Wrap(err, "failed to load configuration")
			}
			log, err := logger.New(serviceName, cfg.Telemetry.Environment, opts.debug || cfg.Logging.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if err := postgres.Migrate(&cfg.Database, log); err != nil {
				log.Error("Migration failed", logger.ErrorField(err))
				return err
			}
			return nil
		},
	}
}
