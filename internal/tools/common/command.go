package common

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/product-catalog-api/internal/observability"
	"github.com/sandeepkv93/product-catalog-api/internal/tools/ui"
)

// Action performs one tool step and returns human-readable detail lines.
type Action func(ctx context.Context) ([]string, error)

type Flags struct {
	EnvFile string
	CI      bool
	Timeout time.Duration
}

func (f *Flags) Bind(cmd *cobra.Command, defaultTimeout time.Duration) {
	cmd.PersistentFlags().StringVar(&f.EnvFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().BoolVar(&f.CI, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().DurationVar(&f.Timeout, "timeout", defaultTimeout, "operation timeout")
}

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Execute runs fn either headless (--ci, JSON on stdout) or behind the
// progress view, and records the outcome as a tool metric.
func Execute(cmd *cobra.Command, flags *Flags, tool, title string, exitCode int, fn Action) error {
	start := time.Now()
	var (
		details []string
		err     error
	)
	if flags.CI {
		ctx, cancel := context.WithTimeout(cmd.Context(), flags.Timeout)
		details, err = fn(ctx)
		cancel()
	} else {
		details, err = ui.Run(title, flags.Timeout, fn)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordToolCommandRun(cmd.Context(), tool, cmd.Name(), outcome)
	observability.RecordToolCommandDuration(cmd.Context(), tool, cmd.Name(), outcome, time.Since(start))

	if flags.CI {
		PrintCIResult(cmd.OutOrStdout(), err == nil, title, details, err)
	}
	if err != nil {
		return &ExitError{Code: exitCode, Err: err}
	}
	return nil
}
