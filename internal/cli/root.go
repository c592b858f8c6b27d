package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"worktracker/internal/config"
)

const closeTimeout = 30 * time.Second

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"

	// newApp builds the App each command runs against.
	newApp func(ctx context.Context) (*App, error)
}

// NewRootCommand creates the root command for the worktracker CLI. Settings
// come from the environment (and .env) as for the worker.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	opts.newApp = func(ctx context.Context) (*App, error) {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		logger := SetupLogger(cfg)
		return NewApp(ctx, cfg, nil, nil, logger)
	}
	return newRootCommand(opts)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "worktracker",
		Short:         "Track work hours, earnings and deductions",
		Long:          "Track companies, hours worked, expenses, insurance and payroll, synced to your personal document.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newCompanyCommand(opts))
	cmd.AddCommand(newWorkCommand(opts))
	cmd.AddCommand(newAmountCommand(opts, expenseKind))
	cmd.AddCommand(newAmountCommand(opts, insuranceKind))
	cmd.AddCommand(newPayrollCommand(opts))
	cmd.AddCommand(newSummaryCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newSignOutCommand(opts))

	return cmd
}

// withApp opens a session, runs fn and closes the session, which writes
// any edit fn made. fn is not run when the document failed to load.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	return o.openAndRun(cmd, false, fn)
}

// inspectApp is withApp for commands that only report on the session; they
// still run after a failed load.
func (o *RootOptions) inspectApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	return o.openAndRun(cmd, true, fn)
}

func (o *RootOptions) openAndRun(cmd *cobra.Command, allowLoadError bool, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := o.newApp(ctx)
	if err != nil {
		return err
	}
	// edits are written even when the command was interrupted
	closeApp := func() error {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		return app.Close(closeCtx)
	}
	if err := app.Open(ctx); err != nil && !(allowLoadError && errors.Is(err, ErrLoadFailed)) {
		return errors.Join(err, closeApp())
	}
	runErr := fn(ctx, app)
	return errors.Join(runErr, closeApp())
}

func (o *RootOptions) printer(cmd *cobra.Command) *printer {
	return &printer{format: o.Format, w: cmd.OutOrStdout()}
}
