package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wedding-ops/internal/groups"
	"wedding-ops/internal/models"
	"wedding-ops/internal/syncwatch"
)

// NewImportCommand materializes every "coming" RSVP in one pass
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Materialize every RSVP marked as coming",
		Long: `Materialize every RSVP marked as coming into guest records.

RSVPs that were already imported are counted and left untouched, so the
command is safe to repeat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.materializer.MaterializeAll(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "import failed", err)
			}
			if err := opts.emit(cmd, summary, func(w io.Writer) error { return renderImport(w, summary) }); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d rsvps failed to import", summary.Failed)}
			}
			return nil
		},
	}
}

// NewSyncCommand runs one sync watcher pass
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one pass of the sync watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			w := syncwatch.New(a.records, a.materializer, syncwatch.Options{Concurrency: concurrency}, a.logger)
			res, err := w.Sync(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "sync failed", err)
			}
			if err := opts.emit(cmd, res, func(w io.Writer) error { return renderSync(w, res) }); err != nil {
				return err
			}
			if res.Failed > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d rsvps failed to sync", res.Failed)}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "RSVPs materialized in parallel")
	return cmd
}

// NewGroupsCommand lists groups or shows one
func NewGroupsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups [key]",
		Short: "List guest groups, or show one by RSVP id, submitter id or group id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			rsvps, err := a.records.RSVPs(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list rsvps", err)
			}
			guests, err := a.records.Guests(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list guests", err)
			}

			if len(args) == 0 {
				idx := groups.Build(rsvps, guests)
				return opts.emit(cmd, idx, func(w io.Writer) error { return renderGroups(w, idx) })
			}
			group, ok := groups.Find(args[0], rsvps, guests)
			if !ok {
				return WrapExitError(ExitCommandError, "group "+args[0], models.ErrNotFound)
			}
			return opts.emit(cmd, group, func(w io.Writer) error { return renderGroup(w, group) })
		},
	}
}

// NewDeleteGuestCommand removes a guest and clears RSVP links to it
func NewDeleteGuestCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-guest <guest-id>",
		Short: "Delete a guest and unlink RSVPs that point at it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.materializer.DeleteGuest(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitCommandError, "failed to delete guest", err)
			}
			return opts.emit(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s\n", args[0])
				return err
			})
		},
	}
}
