package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/MarcoPoloResearchLab/notenest/internal/notebook"
	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
	"github.com/spf13/cobra"
)

func newNotesCommand() *cobra.Command {
	notesCmd := &cobra.Command{
		Use:   "notes",
		Short: "List, save, fetch and delete chapter notes",
	}
	notesCmd.AddCommand(
		newNotesListCommand(),
		newNotesSaveCommand(),
		newNotesFetchCommand(),
		newNotesDeleteCommand(),
		newNotesChaptersCommand(),
		newNotesWatchCommand(),
	)
	return notesCmd
}

func newNotesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the merged notes of every chapter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				snapshot, err := app.notebook.GetPdfMap(cmd.Context())
				if err != nil {
					return err
				}
				reportDegraded(cmd.ErrOrStderr(), snapshot.Degraded, snapshot.SyncErr)

				writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(writer, "CHAPTER\tFILENAME\tSIZE\tUPLOADED\tSOURCE")
				for _, chapter := range snapshot.Notes.Chapters() {
					note := snapshot.Notes[chapter]
					fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n", chapter, note.Filename, note.Size, note.UploadedAt, note.Source)
				}
				return writer.Flush()
			})
		},
	}
}

func newNotesSaveCommand() *cobra.Command {
	var filename string
	cmd := &cobra.Command{
		Use:   "save <chapter> <file>",
		Short: "Store a PDF for a chapter and push it to the cloud",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if filename == "" {
				filename = filepath.Base(args[1])
			}
			return withApplication(cmd, func(app *application) error {
				result, err := app.notebook.SavePdf(cmd.Context(), args[0], notebook.Upload{
					Filename: filename,
					Base64:   base64.StdEncoding.EncodeToString(content),
					Size:     int64(len(content)),
				})
				if err != nil {
					return err
				}
				reportSync(cmd.ErrOrStderr(), result)
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s as %s\n", args[0], filename)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filename, "filename", "", "Stored file name (defaults to the base name of <file>)")
	return cmd
}

func newNotesFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <chapter> <out>",
		Short: "Write the stored PDF of a chapter to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				chapter, err := app.notebook.Chapters().Validate(args[0])
				if err != nil {
					return err
				}
				snapshot, err := app.notebook.GetPdfMap(cmd.Context())
				if err != nil {
					return err
				}
				reportDegraded(cmd.ErrOrStderr(), snapshot.Degraded, snapshot.SyncErr)

				note, ok := snapshot.Notes[chapter]
				if !ok {
					return fmt.Errorf("no note stored for chapter %q", chapter)
				}
				content, err := base64.StdEncoding.DecodeString(note.Base64)
				if err != nil {
					return fmt.Errorf("decode note for chapter %q: %w", chapter, err)
				}
				return os.WriteFile(args[1], content, 0o600)
			})
		},
	}
}

func newNotesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chapter>",
		Short: "Remove the note of a chapter locally and in the cloud",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				result, err := app.notebook.DeletePdf(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				reportSync(cmd.ErrOrStderr(), result)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newNotesChaptersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters",
		Short: "Print the configured chapter names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(app *application) error {
				for _, chapter := range app.notebook.Chapters().Names() {
					fmt.Fprintln(cmd.OutOrStdout(), chapter)
				}
				return nil
			})
		},
	}
}

func newNotesWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the local cache current by following changes of the shared document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApplication(cmd, func(app *application) error {
				return app.notebook.Watch(ctx, func(event remote.ChangeEvent, snapshot notebook.Snapshot) {
					fmt.Fprintf(cmd.OutOrStdout(), "revision %d: %d chapters cached\n", event.Revision, len(snapshot.Notes))
				})
			})
		},
	}
}

func withApplication(cmd *cobra.Command, run func(app *application) error) error {
	app, err := openApplication(cmd.Context())
	if err != nil {
		return err
	}
	runErr := run(app)
	if closeErr := app.Close(); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}

func reportDegraded(writer io.Writer, degraded bool, syncErr error) {
	if degraded {
		fmt.Fprintf(writer, "warning: cloud unavailable, showing cached data: %v\n", syncErr)
	}
}

func reportSync(writer io.Writer, result notebook.SyncResult) {
	if !result.CloudSynced {
		fmt.Fprintf(writer, "warning: saved locally but not synced to the cloud: %v\n", result.Err)
	}
}
