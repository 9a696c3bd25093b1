package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"wedding-ops/internal/handler"
	"wedding-ops/internal/whatsapp"
)

// NewInviteCommand records an invitee and sends the WhatsApp invitation
func NewInviteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invite <phone> <name...>",
		Short: "Invite a guest by phone number",
		Long: `Record a pending RSVP for the phone number and send the invitation over
WhatsApp. When WHATSAPP_ENABLED is false the invitee is recorded but no
message is sent. Inviting the same number again reuses its RSVP.

Examples:
  wedding-ops invite 0521234567 Ann Lee`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := opts.Config, opts.Logger
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var messenger handler.Messenger
			if cfg.WhatsAppEnabled {
				wa, err := whatsapp.NewService(ctx, whatsappConfig(cmd, cfg), logger)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to initialize WhatsApp", err)
				}
				if err := wa.Connect(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to connect to WhatsApp", err)
				}
				defer wa.Disconnect()
				messenger = wa
			}

			rsvps := handler.NewRSVPHandler(a.records, a.materializer, messenger, handlerConfig(cfg), nil, nil, logger)
			res, err := rsvps.Invite(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return WrapExitError(ExitCommandError, "invite failed", err)
			}
			return opts.emit(cmd, res, func(w io.Writer) error {
				status := "recorded, not sent"
				if res.Sent {
					status = "sent"
				}
				_, err := fmt.Fprintf(w, "Invitation for %s (%s): %s\n", res.RSVP.DisplayName(), res.RSVP.Phone, status)
				return err
			})
		},
	}
}
