package main

import (
	"fmt"

	"formcore/internal/auth"
	"formcore/internal/config"

	"github.com/spf13/cobra"
)

func newCreateUserCmd(load func() (config.Config, error)) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Register an identity in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			user, err := auth.NewRegistry(store).CreateIdentity(cmd.Context(), username, email, password, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
