package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wedding-ops/internal/groups"
	"wedding-ops/internal/models"
	"wedding-ops/internal/seating"
)

// NewSeatingCommand prints the seating layout with occupancy
func NewSeatingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seating",
		Short: "Show zones, tables and occupancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			layout, err := a.seating.Layout(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read layout", err)
			}
			return opts.emit(cmd, layout, func(w io.Writer) error { return renderLayout(w, layout) })
		},
	}
}

// NewAssignCommand seats guests, or a whole group, at a table
func NewAssignCommand(opts *RootOptions) *cobra.Command {
	var groupKey string
	cmd := &cobra.Command{
		Use:   "assign <table-id> [guest-id...]",
		Short: "Seat guests at a table",
		Long: `Seat guests at a table in the given order until it is full.

Guests that do not fit are reported as table full and left where they were.

Examples:
  wedding-ops assign t1 g-1 g-2
  wedding-ops assign t1 --group r-1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tableID, guestIDs := args[0], args[1:]
			if groupKey == "" && len(guestIDs) == 0 {
				return WrapExitError(ExitCommandError, "nothing to assign", fmt.Errorf("pass guest ids or --group"))
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var res seating.AssignResult
			if groupKey != "" {
				group, err := findGroup(cmd, a, groupKey)
				if err != nil {
					return err
				}
				res, err = a.seating.AssignGroup(ctx, group, tableID)
				if err != nil {
					return WrapExitError(ExitCommandError, "assign failed", err)
				}
			} else {
				res, err = a.seating.Assign(ctx, guestIDs, tableID)
				if err != nil {
					return WrapExitError(ExitCommandError, "assign failed", err)
				}
			}

			if err := opts.emit(cmd, res, func(w io.Writer) error { return renderAssign(w, res) }); err != nil {
				return err
			}
			if res.FailCount() > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d guests not seated", res.FailCount())}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupKey, "group", "", "seat every member of this group (rsvp id, submitter id or group id)")
	return cmd
}

// NewUnassignCommand clears guests' seats
func NewUnassignCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <guest-id>...",
		Short: "Remove guests from their tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.seating.Unassign(cmd.Context(), args)
			if err := opts.emit(cmd, res, func(w io.Writer) error { return renderBatch(w, "unassigned", res) }); err != nil {
				return err
			}
			if len(res.Failed) > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d guests not unassigned", len(res.Failed))}
			}
			return nil
		},
	}
}

// NewLayoutCommand manages zones and tables
func NewLayoutCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Manage zones and tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "load <file.yaml>",
		Short: "Create or replace zones and tables from a YAML layout file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.seating.LoadLayoutFile(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load layout", err)
			}
			return opts.emit(cmd, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Loaded %d zones and %d tables\n", res.Zones, res.Tables)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-table <table-id>",
		Short: "Unassign everyone at a table and delete it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.seating.DeleteTable(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to delete table", err)
			}
			return opts.emit(cmd, res, func(w io.Writer) error { return renderBatch(w, "unassigned", res) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-zone <zone-id>",
		Short: "Unassign everyone in a zone and delete it with its tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.seating.DeleteZone(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to delete zone", err)
			}
			return opts.emit(cmd, res, func(w io.Writer) error { return renderBatch(w, "unassigned", res) })
		},
	})

	return cmd
}

func findGroup(cmd *cobra.Command, a *app, key string) (models.GuestGroup, error) {
	ctx := cmd.Context()
	rsvps, err := a.records.RSVPs(ctx)
	if err != nil {
		return models.GuestGroup{}, WrapExitError(ExitCommandError, "failed to list rsvps", err)
	}
	guests, err := a.records.Guests(ctx)
	if err != nil {
		return models.GuestGroup{}, WrapExitError(ExitCommandError, "failed to list guests", err)
	}
	group, ok := groups.Find(key, rsvps, guests)
	if !ok {
		return models.GuestGroup{}, WrapExitError(ExitCommandError, "group "+key, models.ErrNotFound)
	}
	return group, nil
}
