package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/product-catalog-api/internal/di"
	"github.com/sandeepkv93/product-catalog-api/internal/tools/common"
)

const (
	toolName = "migrate"
	exitCode = 3
)

type options struct {
	common.Flags
	open func() (*di.MigrationRunner, error)
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(di.InitializeMigrationRunner)
}

func newRootCommand(open func() (*di.MigrationRunner, error)) *cobra.Command {
	opts := &options{open: open}
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Database migration tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.Bind(cmd, 30*time.Second)
	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, &opts.Flags, toolName, "migrate up", exitCode, func(ctx context.Context) ([]string, error) {
				runner, err := opts.connect()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()

				if err := runner.Run(ctx); err != nil {
					return nil, err
				}
				return []string{"schema migration applied", "database: connected"}, nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check database connectivity and pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, &opts.Flags, toolName, "migrate status", exitCode, func(ctx context.Context) ([]string, error) {
				runner, err := opts.connect()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()

				sqlDB, err := runner.DB().DB()
				if err != nil {
					return nil, err
				}
				if err := sqlDB.PingContext(ctx); err != nil {
					return nil, fmt.Errorf("ping database: %w", err)
				}
				plans, err := runner.Plan(ctx)
				if err != nil {
					return nil, err
				}
				pending := 0
				for _, p := range plans {
					if !p.Exists || len(p.MissingColumns) > 0 {
						pending++
					}
				}
				return []string{
					"database: reachable",
					fmt.Sprintf("tables: %d", len(plans)),
					fmt.Sprintf("pending: %d", pending),
				}, nil
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show schema changes without applying them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, &opts.Flags, toolName, "migrate plan", exitCode, func(ctx context.Context) ([]string, error) {
				runner, err := opts.connect()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()

				plans, err := runner.Plan(ctx)
				if err != nil {
					return nil, err
				}
				details := make([]string, 0, len(plans))
				for _, p := range plans {
					switch {
					case !p.Exists:
						details = append(details, "create table "+p.Table)
					case len(p.MissingColumns) > 0:
						details = append(details, fmt.Sprintf("alter table %s add %s", p.Table, strings.Join(p.MissingColumns, ", ")))
					default:
						details = append(details, p.Table+": up to date")
					}
				}
				return details, nil
			})
		},
	}
}

func (o *options) connect() (*di.MigrationRunner, error) {
	if err := common.LoadEnvFile(o.EnvFile); err != nil {
		return nil, err
	}
	return o.open()
}
