package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the most recent conversation transcript as indented JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := a.openDocuments()
			if err != nil {
				return err
			}
			defer docs.Close()

			emailID, transcript, err := docs.LatestTranscript(cmd.Context())
			if err != nil {
				return fmt.Errorf("load transcript: %w", err)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, []byte(transcript), "", "  "); err != nil {
				return fmt.Errorf("transcript of %s is not valid JSON: %w", emailID, err)
			}
			out.WriteByte('\n')

			if err := renameio.WriteFile(args[0], out.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported transcript of %s to %s\n", emailID, args[0])
			return nil
		},
	}
}
