package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	authn "github.com/alem-hub/achievement-hub/internal/infrastructure/identity"
)

// newTokenCommand issues a signed bearer token for local use and tests.
func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed JWT for a principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not configured")
			}

			r, err := identity.ParseRole(role)
			if err != nil {
				return err
			}
			principal, err := identity.NewPrincipal(subject, r)
			if err != nil {
				return err
			}

			provider, err := authn.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
			if err != nil {
				return err
			}
			token, err := provider.Issue(principal, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "principal id")
	cmd.Flags().StringVar(&role, "role", "student", "student, teacher or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}

// newHashKeyCommand prints the bcrypt hash for an API key secret.
func newHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <secret>",
		Short: "Hash an API key secret for AUTH_API_KEYS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := authn.HashAPISecret(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
