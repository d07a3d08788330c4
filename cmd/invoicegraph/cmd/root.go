// Package cmd implements the invoicegraph command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/invoicegraph/pkg/config"
)

// Execute runs the root command with a context cancelled on SIGINT or
// SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	// logOut receives log output; stderr unless a test replaces it.
	logOut io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{logOut: os.Stderr}

	root := &cobra.Command{
		Use:   "invoicegraph [\"SELECT ...\"]",
		Short: "Reconcile invoice emails against the transaction ledger",
		Long: `invoicegraph runs every selected email through a team of LLM agents that
extract invoice details, look them up in the transaction ledger and mark
matching transactions as paid. Each email ends with one of SUCCESS, ERROR,
NOT_INVOICE, RECURSION_LIMIT_REACHED or API_ERROR.

The optional argument replaces the default "SELECT * FROM emails" query.
MAX_ENTRIES limits only the default query; add a LIMIT clause to your own.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: a.runReconcile,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default: ./invoicegraph.yaml when present)")

	root.AddCommand(newReportCmd(a), newExportCmd(a))
	return root
}

func (a *app) init() error {
	loader := config.NewLoader()
	if a.cfgFile != "" {
		loader.WithConfigFile(a.cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(a.logOut)
	if used := loader.ConfigFile(); used != "" {
		a.logger.Debug("loaded config file", "path", used)
	}
	return nil
}
