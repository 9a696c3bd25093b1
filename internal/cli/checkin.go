package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"wedding-ops/internal/checkin"
	"wedding-ops/internal/models"
)

func runGroupAction(cmd *cobra.Command, opts *RootOptions, res checkin.GroupResult) error {
	if err := opts.emit(cmd, res, func(w io.Writer) error { return renderGroupResult(w, res) }); err != nil {
		return err
	}
	if res.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d members failed", res.Failed)}
	}
	return nil
}

// NewCheckInCommand records an arrival for a guest or a whole group
func NewCheckInCommand(opts *RootOptions) *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "checkin <guest-id | group-key>",
		Short: "Check in a guest and the rest of their group",
		Long: `Check in a guest. Everyone in the same group who has not arrived and has
not declined is checked in with the same timestamp.

With --group the argument is an RSVP id, submitter id or group id and every
eligible member is checked in.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if group {
				res, err := a.checkin.CheckInGroup(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "group check-in failed", err)
				}
				return runGroupAction(cmd, opts, res)
			}

			res, err := a.checkin.CheckIn(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "check-in failed", err)
			}
			if err := opts.emit(cmd, res, func(w io.Writer) error { return renderCheckIn(w, "checked in", res) }); err != nil {
				return err
			}
			if res.CascadeFailed > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d group members not checked in", res.CascadeFailed)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "treat the argument as a group key")
	return cmd
}

// NewUncheckCommand reverts an arrival
func NewUncheckCommand(opts *RootOptions) *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   "uncheck <guest-id | group-key>",
		Short: "Revert a check-in for one guest, or a whole group with --group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if group {
				res, err := a.checkin.UncheckGroup(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "group uncheck failed", err)
				}
				return runGroupAction(cmd, opts, res)
			}

			res, err := a.checkin.Uncheck(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "uncheck failed", err)
			}
			return opts.emit(cmd, res, func(w io.Writer) error { return renderCheckIn(w, "unchecked", res) })
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "treat the argument as a group key")
	return cmd
}

// NewToggleCommand flips a group between fully arrived and not arrived
func NewToggleCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <group-key>",
		Short: "Uncheck a fully arrived group, otherwise check in its remaining members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.checkin.ToggleGroup(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "toggle failed", err)
			}
			return runGroupAction(cmd, opts, res)
		},
	}
}

// NewDispositionCommand overrides one guest's own answer
func NewDispositionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disposition <guest-id> <yes|no|pending>",
		Short: "Record whether one person in a group is coming",
		Long: `Record one person's own answer without changing the RSVP the group shares.
A guest marked no is skipped when the group is checked in, and loses any
check-in already recorded.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := models.ParseDisposition(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid disposition", err)
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			guest, err := a.checkin.SetDisposition(cmd.Context(), args[0], d)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to set disposition", err)
			}
			return opts.emit(cmd, guest, func(w io.Writer) error { return renderDisposition(w, guest) })
		},
	}
}
