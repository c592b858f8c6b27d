package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"worktracker/internal/core"
)

type entryFlags struct {
	description string
	date        string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "free-text description")
	cmd.Flags().StringVar(&f.date, "date", "", "date of the entry (YYYY-MM-DD)")
}

func (f *entryFlags) form() url.Values {
	form := url.Values{}
	form.Set("description", f.description)
	form.Set("date", f.date)
	return form
}

func removeCommand(opts *RootOptions, what string, remove func(app *App, id core.ID) error) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a " + what,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := remove(app, core.ID(args[0])); err != nil {
					return fmt.Errorf("remove %s %s: %w", what, args[0], err)
				}
				return opts.printer(cmd).emit(map[string]string{"removed": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Removed %s %s\n", what, args[0])
					return err
				})
			})
		},
	}
}

func newCompanyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage companies and their hourly rates",
	}

	var name, rate, percent string
	companyForm := func() url.Values {
		return url.Values{"name": {name}, "rate": {rate}, "percent": {percent}}
	}
	registerCompanyFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&name, "name", "", "company name")
		c.Flags().StringVar(&rate, "rate", "", "base hourly rate")
		c.Flags().StringVar(&percent, "percent", "0", "deduction percentage (0-100)")
		_ = c.MarkFlagRequired("name")
		_ = c.MarkFlagRequired("rate")
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := core.ParseCompanyForm(companyForm())
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				c, err := app.Store().AddCompany(in)
				if err != nil {
					return err
				}
				return printCompany(opts.printer(cmd), "Added", c)
			})
		},
	}
	registerCompanyFlags(add)

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a company's name, rate or deduction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := core.ParseCompanyForm(companyForm())
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				c, err := app.Store().UpdateCompany(core.ID(args[0]), in)
				if err != nil {
					return fmt.Errorf("update company %s: %w", args[0], err)
				}
				return printCompany(opts.printer(cmd), "Updated", c)
			})
		},
	}
	registerCompanyFlags(update)

	list := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				companies := app.Session.Snapshot().Companies
				return opts.printer(cmd).emit(companies, func(w io.Writer) error {
					fmt.Fprintln(w, "ID\tNAME\tBASE RATE\tDEDUCTION\tPAY RATE")
					for _, c := range companies {
						fmt.Fprintf(w, "%s\t%s\t%s\t%g%%\t%s\n", c.ID, c.Name, c.BaseRate, c.DeductionPercent, c.PayRate)
					}
					return nil
				})
			})
		},
	}

	cmd.AddCommand(add, update, list, removeCommand(opts, "company", func(app *App, id core.ID) error {
		return app.Store().RemoveCompany(id)
	}))
	return cmd
}

func printCompany(p *printer, verb string, c core.Company) error {
	return p.emit(c, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s company %s (%s): pay rate %s\n", verb, c.Name, c.ID, c.PayRate)
		return err
	})
}

func newWorkCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Record hours worked",
	}

	var (
		entry          entryFlags
		company, hours string
		rate           string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record hours for a company at its current pay rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form := entry.form()
			form.Set("companyId", company)
			form.Set("hours", hours)
			form.Set("rate", rate)
			in, err := core.ParseWorkRecordForm(form)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				rec, err := app.Store().AddWorkRecord(in)
				if err != nil {
					return err
				}
				return opts.printer(cmd).emit(rec, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Recorded %g hours at %s (%s): %s\n", rec.Hours, rec.Rate, rec.ID, rec.Earnings())
					return err
				})
			})
		},
	}
	entry.register(add)
	add.Flags().StringVar(&company, "company", "", "company id")
	add.Flags().StringVar(&hours, "hours", "", "hours worked")
	add.Flags().StringVar(&rate, "rate", "", "override the company's pay rate")
	_ = add.MarkFlagRequired("company")
	_ = add.MarkFlagRequired("hours")

	cmd.AddCommand(add, removeCommand(opts, "work record", func(app *App, id core.ID) error {
		return app.Store().RemoveWorkRecord(id)
	}))
	return cmd
}

type amountKind struct {
	use, noun, short string
	add              func(app *App, in core.AmountInput) (any, core.ID, error)
	remove           func(app *App, id core.ID) error
}

var (
	expenseKind = amountKind{
		use:   "expense",
		noun:  "expense",
		short: "Record expenses deducted from income",
		add: func(app *App, in core.AmountInput) (any, core.ID, error) {
			e, err := app.Store().AddExpense(in)
			return e, e.ID, err
		},
		remove: func(app *App, id core.ID) error { return app.Store().RemoveExpense(id) },
	}
	insuranceKind = amountKind{
		use:   "insurance",
		noun:  "insurance item",
		short: "Record insurance payments deducted from income",
		add: func(app *App, in core.AmountInput) (any, core.ID, error) {
			i, err := app.Store().AddInsuranceItem(in)
			return i, i.ID, err
		},
		remove: func(app *App, id core.ID) error { return app.Store().RemoveInsuranceItem(id) },
	}
)

func newAmountCommand(opts *RootOptions, kind amountKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind.use,
		Short: kind.short,
	}

	var (
		entry  entryFlags
		amount string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an " + kind.noun,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form := entry.form()
			form.Set("amount", amount)
			in, err := core.ParseAmountForm(form)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				item, id, err := kind.add(app, in)
				if err != nil {
					return err
				}
				return opts.printer(cmd).emit(item, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Added %s %s: %s\n", kind.noun, id, in.Amount)
					return err
				})
			})
		},
	}
	entry.register(add)
	add.Flags().StringVar(&amount, "amount", "", "amount")
	_ = add.MarkFlagRequired("amount")

	cmd.AddCommand(add, removeCommand(opts, kind.noun, kind.remove))
	return cmd
}

func newPayrollCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payroll",
		Short: "Record payroll entries deducted from income",
	}

	var (
		entry entryFlags
		gross string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a payroll entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form := entry.form()
			form.Set("grossPay", gross)
			in, err := core.ParsePayrollForm(form)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				item, err := app.Store().AddPayrollItem(in)
				if err != nil {
					return err
				}
				return opts.printer(cmd).emit(item, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Added payroll entry %s: %s\n", item.ID, item.Gross())
					return err
				})
			})
		},
	}
	entry.register(add)
	add.Flags().StringVar(&gross, "gross", "", "gross pay (optional)")

	cmd.AddCommand(add, removeCommand(opts, "payroll entry", func(app *App, id core.ID) error {
		return app.Store().RemovePayrollItem(id)
	}))
	return cmd
}
