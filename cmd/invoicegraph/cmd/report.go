package cmd

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/invoicegraph/pkg/batch"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarize processing progress of the email database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := a.openDocuments()
			if err != nil {
				return err
			}
			defer docs.Close()

			report, err := batch.LoadReport(cmd.Context(), docs)
			if err != nil {
				return err
			}
			_, err = report.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}
