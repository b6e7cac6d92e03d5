package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rebeliceyang/lazydb/internal/app"
	"github.com/rebeliceyang/lazydb/internal/db/discovery"
	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/spf13/cobra"
)

func newProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage saved connection profiles",
	}

	cmd.AddCommand(newProfileListCommand())
	cmd.AddCommand(newProfileAddCommand())
	cmd.AddCommand(newProfileRemoveCommand())
	cmd.AddCommand(newProfileTestCommand())
	cmd.AddCommand(newProfileDiscoverCommand())
	return cmd
}

func newProfileListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Driver", "Target"})
			for _, p := range a.Profiles.Profiles() {
				t.AppendRow(table.Row{p.Name, string(p.Driver), target(p)})
			}
			t.Render()
			return nil
		}),
	}
}

func target(p models.ConnectionProfile) string {
	if p.Driver.IsFileBased() {
		return p.Path
	}
	s := fmt.Sprintf("%s@%s:%s", p.Username, p.Host, p.Port)
	if p.Database != "" {
		s += "/" + p.Database
	}
	return s
}

func newProfileAddCommand() *cobra.Command {
	var (
		p          models.ConnectionProfile
		driver     string
		test       bool
		useKeyring bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Save a new connection profile",
		Example: `  # A SQLite file
  lazydb profile add local --driver sqlite --path ./app.db

  # A PostgreSQL server, checked before saving
  lazydb profile add prod --driver postgres --host db.internal --port 5432 --user app --test

  # Keep the password out of the profile store
  lazydb profile add prod --driver postgres --host db.internal --user app --password s3cret --keyring`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			d, err := models.ParseDriver(driver)
			if err != nil {
				return err
			}
			p.Driver = d
			p.Name = args[0]
			if !d.IsFileBased() && p.Port == "" {
				p.Port = "5432"
			}
			p = p.Normalized()
			if err := p.Validate(); err != nil {
				return err
			}
			if !d.IsFileBased() && p.Password == "" {
				pw, err := discovery.LookupPassword(os.Getenv, p)
				if err != nil {
					a.Logger.Warn("skipping password file", "error", err)
				}
				p.Password = pw
			}

			if test {
				ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.Performance.ConnectTimeoutDuration())
				defer cancel()
				if err := a.Manager.Test(ctx, p); err != nil {
					return err
				}
			}

			if useKeyring && !d.IsFileBased() && p.Password != "" {
				store, err := a.Secrets()
				if err != nil {
					return err
				}
				if err := store.Save(p, p.Password); err != nil {
					return err
				}
				p.Password = ""
			}

			if err := a.Profiles.Add(p); err != nil {
				return err
			}
			newPresenter(cmd, a).Success(fmt.Sprintf("saved profile %s", p.Label()))
			return nil
		}),
	}

	cmd.Flags().StringVar(&driver, "driver", "sqlite", "database driver (sqlite|postgres)")
	cmd.Flags().StringVar(&p.Path, "path", "", "SQLite database file")
	cmd.Flags().StringVar(&p.Host, "host", "", "server host")
	cmd.Flags().StringVar(&p.Port, "port", "", "server port (default 5432)")
	cmd.Flags().StringVar(&p.Username, "user", "", "user name")
	cmd.Flags().StringVar(&p.Password, "password", "", "password")
	cmd.Flags().StringVar(&p.Database, "database", "", "default database")
	cmd.Flags().BoolVar(&test, "test", false, "check the connection before saving")
	cmd.Flags().BoolVar(&useKeyring, "keyring", false, "keep the password in the OS keyring instead of the profile store")

	_ = cmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newProfileRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved profile",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			p, err := a.Profiles.Find(args[0])
			if err != nil {
				return err
			}
			if err := a.Profiles.Remove(p.Driver, p.Name); err != nil {
				return err
			}
			if !p.Driver.IsFileBased() && p.Password == "" {
				if store, err := a.Secrets(); err == nil {
					if err := store.Delete(p); err != nil {
						a.Logger.Warn("failed to delete keyring password", "profile", p.Name, "error", err)
					}
				}
			}
			newPresenter(cmd, a).Success(fmt.Sprintf("removed profile %s", p.Name))
			return nil
		}),
	}
}

func newProfileTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Check that a saved profile can connect",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			p, err := a.ProfileSource().Find(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.Performance.ConnectTimeoutDuration())
			defer cancel()
			if err := a.Manager.Test(ctx, p); err != nil {
				return err
			}
			newPresenter(cmd, a).Success(fmt.Sprintf("connected to %s", p.Label()))
			return nil
		}),
	}
}

func newProfileDiscoverCommand() *cobra.Command {
	var (
		opts discovery.Options
		save bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find PostgreSQL servers from the environment and .pgpass",
		Long: `Find PostgreSQL servers from the PG* environment variables, the
password file and, with --scan, open ports on a host. Use --save to add the
ones that are not saved yet.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			opts.Logger = a.Logger
			candidates := discovery.NewDiscoverer(opts).Discover(cmd.Context())

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Source", "Target"})
			for _, c := range candidates {
				t.AppendRow(table.Row{c.Profile.Name, c.Source.String(), target(c.Profile)})
			}
			t.Render()

			if !save {
				return nil
			}

			presenter := newPresenter(cmd, a)
			saved := 0
			for _, c := range candidates {
				if _, err := a.Profiles.Find(c.Profile.Name); err == nil {
					continue
				}
				if err := a.Profiles.Add(c.Profile); err != nil {
					return err
				}
				saved++
			}
			presenter.Success(fmt.Sprintf("saved %d new profiles", saved))
			return nil
		}),
	}

	cmd.Flags().BoolVar(&opts.Scan, "scan", false, "probe ports for listening servers")
	cmd.Flags().StringVar(&opts.ScanHost, "host", "localhost", "host to probe with --scan")
	cmd.Flags().IntSliceVar(&opts.Ports, "ports", discovery.DefaultPorts, "ports to probe with --scan")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", discovery.DefaultScanTimeout, "time allowed per probe")
	cmd.Flags().BoolVar(&save, "save", false, "save candidates that are not saved yet")
	return cmd
}
