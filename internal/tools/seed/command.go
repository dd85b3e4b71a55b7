package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/product-catalog-api/internal/database"
	"github.com/sandeepkv93/product-catalog-api/internal/di"
	"github.com/sandeepkv93/product-catalog-api/internal/tools/common"
)

const (
	toolName = "seed"
	exitCode = 3
)

type options struct {
	common.Flags
	migrate bool
	open    func() (*di.MigrationRunner, error)
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(di.InitializeMigrationRunner)
}

func newRootCommand(open func() (*di.MigrationRunner, error)) *cobra.Command {
	opts := &options{open: open}
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Sample product data tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.Bind(cmd, 30*time.Second)
	cmd.PersistentFlags().BoolVar(&opts.migrate, "migrate", true, "apply schema migrations before seeding")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts))
	return cmd
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Insert sample products that are not present yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, &opts.Flags, toolName, "seed apply", exitCode, func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.EnvFile); err != nil {
					return nil, err
				}
				runner, err := opts.open()
				if err != nil {
					return nil, err
				}
				defer func() { _ = runner.Close() }()

				if opts.migrate {
					if err := runner.Run(ctx); err != nil {
						return nil, err
					}
				}
				report, err := database.Seed(ctx, runner.DB())
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("created=%d skipped=%d", report.Created, report.Skipped)}
				if report.Noop {
					details = append(details, "sample products already present")
				}
				for _, title := range report.Titles {
					details = append(details, "inserted: "+title)
				}
				return details, nil
			})
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "List the sample products without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return common.Execute(cmd, &opts.Flags, toolName, "seed dry-run", exitCode, func(ctx context.Context) ([]string, error) {
				products := database.SampleProducts()
				details := make([]string, 0, len(products)+1)
				details = append(details, fmt.Sprintf("would ensure %d products", len(products)))
				for _, p := range products {
					details = append(details, fmt.Sprintf("%s (%s, %.2f)", p.Title, p.Category, p.Price))
				}
				return details, nil
			})
		},
	}
}
