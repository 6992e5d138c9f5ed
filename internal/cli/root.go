// Package cli implements the sheetload command line: inspect a spreadsheet
// and load it into a database without the web UI.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree. Configuration comes from the same
// environment variables as the server.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "sheetload",
		Short:        "Load CSV and Excel files into MySQL, PostgreSQL, SQL Server or SQLite",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFiles()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			// Keep stdout for results.
			logging.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}

	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newLoadCmd(a))
	return root
}

// app carries the configuration loaded before any subcommand runs.
type app struct {
	cfg *config.Config
}

func (a *app) service() *core.Service {
	return core.NewService(core.ServiceConfig{
		MaxConcurrent:  1,
		MaxWaitTime:    a.cfg.Load.MaxWaitTime,
		BatchSize:      a.cfg.Load.BatchSize,
		Timeout:        a.cfg.Load.Timeout,
		ConnectTimeout: a.cfg.Load.ConnectTimeout,
		PreviewRows:    a.cfg.Upload.PreviewRows,
		ODBCDriver:     a.cfg.Load.SQLServerODBCDriver,
	}, nil)
}
