package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (r *RootCommand) addAuthCommands() {
	var name, email, password string

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.context(cmd)
			defer cancel()

			user, err := r.session.Register(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered as %s <%s>\n", user.Name, user.Email)
			return nil
		},
	}
	registerCmd.Flags().StringVar(&name, "name", "", "Display name")
	registerCmd.Flags().StringVar(&email, "email", "", "E-mail address")
	registerCmd.Flags().StringVar(&password, "password", "", "Password, 6 to 72 characters")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := r.context(cmd)
			defer cancel()

			user, err := r.session.Login(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Email)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&email, "email", "", "E-mail address")
	loginCmd.Flags().StringVar(&password, "password", "", "Password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	r.cmd.AddCommand(registerCmd, loginCmd, logoutCmd)
}
