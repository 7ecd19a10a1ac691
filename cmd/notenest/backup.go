package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newBackupCommand() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Export, import and mirror backups of notes and users",
	}
	backupCmd.AddCommand(
		newBackupExportCommand(),
		newBackupImportCommand(),
		newBackupPushCommand(),
		newBackupPullCommand(),
	)
	return backupCmd
}

func newBackupExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file|-]",
		Short: "Write a backup document to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				if len(args) == 0 || args[0] == "-" {
					return app.notebook.ExportBackup(cmd.Context(), cmd.OutOrStdout())
				}
				file, err := os.OpenFile(args[0], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				if err := app.notebook.ExportBackup(cmd.Context(), file); err != nil {
					_ = file.Close()
					return err
				}
				return file.Close()
			})
		},
	}
}

func newBackupImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a backup document into local and cloud data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close() //nolint:errcheck

			return withApplication(cmd, func(app *application) error {
				result, err := app.notebook.ImportBackup(cmd.Context(), file)
				if err != nil {
					return err
				}
				reportSync(cmd.ErrOrStderr(), result)
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", args[0])
				return nil
			})
		},
	}
}

func newBackupPushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Store the current notes and users in the configured backup target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				if err := app.notebook.CreateCloudBackup(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "backup stored")
				return nil
			})
		},
	}
}

func newBackupPullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Restore notes and users from the configured backup target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				result, err := app.notebook.RestoreCloudBackup(cmd.Context())
				if err != nil {
					return err
				}
				reportSync(cmd.ErrOrStderr(), result)
				fmt.Fprintln(cmd.OutOrStdout(), "backup restored")
				return nil
			})
		},
	}
}
