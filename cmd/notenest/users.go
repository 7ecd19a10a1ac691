package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/MarcoPoloResearchLab/notenest/internal/notebook"
	"github.com/spf13/cobra"
)

func newUsersCommand() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Record and inspect the usage log",
	}
	usersCmd.AddCommand(newUsersLoginCommand(), newUsersListCommand())
	return usersCmd
}

func newUsersLoginCommand() *cobra.Command {
	var login notebook.Login
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Record a login for this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				result, err := app.notebook.RegisterUserLogin(cmd.Context(), login)
				if err != nil {
					return err
				}
				reportSync(cmd.ErrOrStderr(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&login.Name, "name", "", "Display name (defaults to Unknown)")
	cmd.Flags().StringVar(&login.Email, "email", "", "Email address")
	return cmd
}

func newUsersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show recorded logins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				snapshot, err := app.notebook.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				reportDegraded(cmd.ErrOrStderr(), snapshot.Degraded, snapshot.SyncErr)

				writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(writer, "NAME\tEMAIL\tIP\tLAST LOGIN\tCOUNT")
				for _, user := range snapshot.Users {
					fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\n", user.Name, user.Email, user.IP, user.LastLoginAt, user.LoginCount)
				}
				return writer.Flush()
			})
		},
	}
}
