package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rebeliceyang/lazydb/internal/app"
	"github.com/rebeliceyang/lazydb/internal/export"
	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/spf13/cobra"
)

func newFavoriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorite",
		Aliases: []string{"fav", "favorites"},
		Short:   "Save and run named queries",
	}

	cmd.AddCommand(newFavoriteAddCommand())
	cmd.AddCommand(newFavoriteListCommand())
	cmd.AddCommand(newFavoriteRunCommand())
	cmd.AddCommand(newFavoriteRemoveCommand())
	cmd.AddCommand(newFavoriteExportCommand())
	return cmd
}

func newFavoriteAddCommand() *cobra.Command {
	var f models.Favorite

	cmd := &cobra.Command{
		Use:     "add <name> <profile> <sql>",
		Short:   "Save a query under a name",
		Example: `  lazydb favorite add older local "SELECT * FROM employees WHERE age > 30" --tag hr`,
		Args:    cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			if _, err := a.Profiles.Find(args[1]); err != nil {
				return err
			}
			m, err := a.Favorites()
			if err != nil {
				return err
			}

			f.Name, f.Profile, f.Query = args[0], args[1], args[2]
			saved, err := m.Add(f)
			if err != nil {
				return err
			}
			newPresenter(cmd, a).Success(fmt.Sprintf("saved favorite %s", saved.Name))
			return nil
		}),
	}

	cmd.Flags().StringVarP(&f.Database, "database", "d", "", "database to run against (server profiles)")
	cmd.Flags().StringVar(&f.Description, "description", "", "what the query is for")
	cmd.Flags().StringSliceVar(&f.Tags, "tag", nil, "tag for searching (repeatable)")
	return cmd
}

func newFavoriteListCommand() *cobra.Command {
	var (
		search string
		top    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved queries",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			m, err := a.Favorites()
			if err != nil {
				return err
			}

			favorites := m.Search(search)
			if top > 0 {
				favorites = m.MostUsed(top)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Profile", "Query", "Used", "Last used"})
			for _, f := range favorites {
				lastUsed := "never"
				if !f.LastUsed.IsZero() {
					lastUsed = f.LastUsed.Local().Format(time.DateTime)
				}
				t.AppendRow(table.Row{f.Name, f.Profile, f.Query, f.UsageCount, lastUsed})
			}
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 3, WidthMax: a.Config.Data.MaxCellDisplayLength, WidthMaxEnforcer: text.Trim},
			})
			t.Render()
			return nil
		}),
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show favorites matching this text")
	cmd.Flags().IntVar(&top, "top", 0, "show the most used favorites instead")
	return cmd
}

func newFavoriteRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Run a saved query",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			m, err := a.Favorites()
			if err != nil {
				return err
			}
			f, err := m.Get(args[0])
			if err != nil {
				return err
			}

			result, err := a.RunQuery(cmd.Context(), f.Profile, f.Database, f.Query)
			if err != nil {
				return err
			}
			if err := m.RecordUsage(f.Name); err != nil {
				a.Logger.Warn("failed to record favorite usage", "favorite", f.Name, "error", err)
			}
			if result.Error != nil {
				return result.Error
			}
			renderResult(cmd.OutOrStdout(), result)
			return nil
		}),
	}
}

func newFavoriteRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved query",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			m, err := a.Favorites()
			if err != nil {
				return err
			}
			if err := m.Delete(args[0]); err != nil {
				return err
			}
			newPresenter(cmd, a).Success(fmt.Sprintf("removed favorite %s", args[0]))
			return nil
		}),
	}
}

func newFavoriteExportCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write saved queries to a CSV or JSON file",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			format, err := export.ParseFormat(filepath.Ext(out))
			if err != nil {
				return err
			}
			m, err := a.Favorites()
			if err != nil {
				return err
			}
			if err := m.Export(format, out); err != nil {
				return err
			}
			newPresenter(cmd, a).Success(fmt.Sprintf("exported favorites to %s", out))
			return nil
		}),
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file ending in .csv or .json")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
