package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/octofit/internal/auth"
)

func newTokenCommand(a *app) *cobra.Command {
	var (
		scopes []string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Sign a development bearer token with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.token(cmd.Context(), args[0], scopes, ttl)
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scope to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func (a *app) token(_ context.Context, userID string, scopes []string, ttl time.Duration) error {
	tok, err := auth.Sign(auth.Config{Secret: a.cfg.JWTSecret, Issuer: a.cfg.JWTIssuer}, userID, scopes, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
