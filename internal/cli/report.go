package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"worktracker/internal/export"
)

func newSummaryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show earnings per company, deductions and net income",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				totals := app.Session.Totals()
				return opts.printer(cmd).emit(newSummaryView(totals), func(w io.Writer) error {
					return writeSummary(w, totals)
				})
			})
		},
	}
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every collection as JSON or an Excel workbook",
		Long: `Export every collection of the signed-in user.

A path ending in .xlsx gets a workbook with a summary sheet and one sheet
per collection; anything else gets the JSON document, which import reads
back. "-" writes JSON to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				snap := app.Session.Snapshot()
				if out == "-" {
					return export.WriteJSON(cmd.OutOrStdout(), snap)
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				write := export.WriteJSON
				if strings.EqualFold(filepath.Ext(out), ".xlsx") {
					write = export.WriteWorkbook
				}
				if err := write(f, snap); err != nil {
					f.Close()
					return fmt.Errorf("write export: %w", err)
				}
				if err := f.Close(); err != nil {
					return err
				}
				return opts.printer(cmd).emit(map[string]any{"path": out, "entities": snap.Len()}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Exported %d entities to %s\n", snap.Len(), out)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file (.json or .xlsx), - for stdout")
	return cmd
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every collection with a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return fmt.Errorf("open import file: %w", err)
					}
					defer f.Close()
					r = f
				}
				if err := app.Session.Import(ctx, r); err != nil {
					return err
				}
				n := app.Session.Snapshot().Len()
				return opts.printer(cmd).emit(map[string]any{"entities": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Imported %d entities\n", n)
					return err
				})
			})
		},
	}
}

type statusView struct {
	State         string    `json:"state"`
	UserID        string    `json:"userId,omitempty"`
	UserName      string    `json:"userName,omitempty"`
	Document      string    `json:"document,omitempty"`
	Editable      bool      `json:"editable"`
	Entities      int       `json:"entities"`
	Synced        bool      `json:"synced"`
	LastPersistAt time.Time `json:"lastPersistAt,omitzero"`
	LastError     string    `json:"lastError,omitempty"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.inspectApp(cmd, func(ctx context.Context, app *App) error {
				id := app.Session.Identity()
				sync := app.Session.SyncStatus()
				loadErr := app.Session.LastError()
				v := statusView{
					State:         app.Session.State().String(),
					UserID:        id.Key(),
					Document:      app.Session.DocumentKey(),
					Editable:      !app.Store().Locked() && loadErr == nil,
					Entities:      app.Session.Snapshot().Len(),
					Synced:        sync.Synced(),
					LastPersistAt: sync.LastPersistAt,
				}
				if id != nil {
					v.UserName = id.DisplayName()
				}
				if loadErr != nil {
					v.LastError = loadErr.Error()
				} else if sync.LastError != nil {
					v.LastError = sync.LastError.Error()
				}
				return opts.printer(cmd).emit(v, func(w io.Writer) error {
					fmt.Fprintf(w, "State\t%s\n", v.State)
					if v.UserID != "" {
						fmt.Fprintf(w, "User\t%s (%s)\n", v.UserName, v.UserID)
					}
					if v.Document != "" {
						fmt.Fprintf(w, "Document\t%s\n", v.Document)
					}
					fmt.Fprintf(w, "Editable\t%t\n", v.Editable)
					fmt.Fprintf(w, "Entities\t%d\n", v.Entities)
					fmt.Fprintf(w, "Synced\t%t\n", v.Synced)
					if v.LastError != "" {
						fmt.Fprintf(w, "Last error\t%s\n", v.LastError)
					}
					return nil
				})
			})
		},
	}
}

func newSignOutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Write pending edits and sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Session.SignOut(ctx); err != nil {
					return err
				}
				return opts.printer(cmd).emit(map[string]string{"state": app.Session.State().String()}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Signed out")
					return err
				})
			})
		},
	}
}
