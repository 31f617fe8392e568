// Package cmd provides the CLI commands for Clearpath.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clearpath-ai/clearpath-rag/internal/config"
	"github.com/clearpath-ai/clearpath-rag/internal/ui"
	"github.com/clearpath-ai/clearpath-rag/pkg/version"
)

var (
	configPath string
	noColor    bool
)

// NewRootCmd creates the root command for the clearpath CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clearpath",
		Short: "Document-grounded support assistant",
		Long: `Clearpath answers customer support questions grounded in your
own PDF documentation. It ingests PDFs into a local vector index,
routes each query to an appropriately sized model, and serves
answers with source citations over HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("clearpath version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "clearpath.yaml", "Path to config file")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads and validates the configuration for a command.
func loadConfig(requireKey bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(requireKey); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printer builds the shared CLI printer honoring the --no-color flag.
func printer() *ui.Printer {
	return ui.NewPrinter(ui.Config{NoColor: noColor})
}
