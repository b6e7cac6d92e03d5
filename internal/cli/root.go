// Package cli provides the command-line interface for lazydb.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rebeliceyang/lazydb/internal/app"
	"github.com/rebeliceyang/lazydb/internal/config"
	"github.com/rebeliceyang/lazydb/internal/ui/terminal"
	"github.com/rebeliceyang/lazydb/internal/ui/theme"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// errReported marks a failure whose message the presenter already printed.
var errReported = errors.New("command failed")

// appKey is used to store the app in context.
type appKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "lazydb",
		Short: "lazydb - browse and edit SQLite and PostgreSQL tables",
		Long: `lazydb browses the tables of saved SQLite and PostgreSQL connections.

Large text and binary columns are shown as [BLOB] and fetched on demand,
rows can be filtered, sorted and edited, and ad-hoc queries are kept in a
local history.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip setup for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger := app.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (%s, %s)\n", GitCommit, BuildDate))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <user config dir>/lazydb/config.yaml)")

	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newDatabasesCommand())
	rootCmd.AddCommand(newTablesCommand())
	rootCmd.AddCommand(newBrowseCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newEditCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newFavoriteCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// withApp adapts fn to a RunE that receives the app stored by
// PersistentPreRunE and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, ok := cmd.Context().Value(appKey{}).(*app.App)
		if !ok {
			return errors.New("application not initialized")
		}
		defer func() {
			if cerr := a.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, a)
	}
}

func newPresenter(cmd *cobra.Command, a *app.App) *terminal.Presenter {
	return terminal.NewPresenter(cmd.OutOrStdout(), cmd.ErrOrStderr(), terminal.Options{
		Theme:        theme.GetTheme(a.Config.UI.Theme),
		MaxCellWidth: a.Config.Data.MaxCellDisplayLength,
	})
}
