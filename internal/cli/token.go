package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"wedding-ops/internal/auth"
)

// NewTokenCommand issues a bearer token for the HTTP API
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = opts.Config.TokenTTL
			}
			issuer, err := auth.NewIssuer(opts.Config.JWTSecret, ttl, nil)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot issue tokens", err)
			}
			token, err := issuer.Issue(userID, role)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}
			return opts.emit(cmd, map[string]string{"token": token, "userId": userID, "role": role}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, token)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id carried in the token (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&role, "role", auth.RoleOperator, "operator or respondent")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	return cmd
}
