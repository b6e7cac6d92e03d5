package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rebeliceyang/lazydb/internal/app"
	"github.com/rebeliceyang/lazydb/internal/export"
	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/spf13/cobra"
)

func newQueryCommand() *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "query <profile> <sql>",
		Short: "Run a SQL statement and print its result",
		Long: `Run a SQL statement against a profile and print its result. Every
statement is recorded in the query history unless history is disabled.`,
		Example: `  lazydb query local "SELECT name, age FROM employees WHERE age > 30"
  lazydb query prod "UPDATE jobs SET state = 'done' WHERE id = 4" -d shop`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			result, err := a.RunQuery(cmd.Context(), args[0], database, args[1])
			if err != nil {
				return err
			}
			if result.Error != nil {
				return result.Error
			}
			renderResult(cmd.OutOrStdout(), result)
			return nil
		}),
	}

	cmd.Flags().StringVarP(&database, "database", "d", "", "database to use (server profiles)")
	return cmd
}

// renderResult renders a query result as a table, or the affected row count
// for statements without columns.
func renderResult(w io.Writer, result models.QueryResult) {
	if len(result.Columns) == 0 {
		_, _ = fmt.Fprintf(w, "%d rows affected (%s)\n", result.RowsAffected, result.Duration.Round(time.Millisecond))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range result.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v
		}
		t.AppendRow(r)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows, %s)\n", len(result.Rows), result.Duration.Round(time.Millisecond))
}

func newHistoryCommand() *cobra.Command {
	var (
		search string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently executed queries",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			store, err := a.History()
			if err != nil {
				return err
			}

			var entries []models.HistoryEntry
			if search != "" {
				entries, err = store.Search(cmd.Context(), search, limit)
			} else {
				entries, err = store.GetRecent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Executed", "Profile", "Query", "Result"})
			for _, e := range entries {
				t.AppendRow(table.Row{
					e.ExecutedAt.Local().Format(time.DateTime),
					e.ProfileName,
					strings.Join(strings.Fields(e.Query), " "),
					historyResult(e),
				})
			}
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 3, WidthMax: a.Config.Data.MaxCellDisplayLength, WidthMaxEnforcer: text.Trim},
			})
			t.Render()
			return nil
		}),
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only show queries containing this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	return cmd
}

func historyResult(e models.HistoryEntry) string {
	if !e.Success {
		return "error: " + e.ErrorMessage
	}
	return fmt.Sprintf("%d rows, %s", e.RowsAffected, e.Duration.Round(time.Millisecond))
}

func newExportCommand() *cobra.Command {
	var (
		t      tableTarget
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export <profile> <table>",
		Short: "Write the rows of a table to a CSV or JSON file",
		Long: `Write every row of a table, or the rows matching --filter, to a file.
Large columns are written as [BLOB], the same way they are displayed.`,
		Example: `  lazydb export local employees --out employees.csv
  lazydb export local employees --format json --filter "age > 30" --out older.json`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			t.profile, t.table = args[0], args[1]

			if !cmd.Flags().Changed("format") {
				if ext := filepath.Ext(out); ext != "" {
					format = ext
				}
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			b := newBrowser(cmd, a)
			defer b.close()

			if _, err := b.open(t); err != nil {
				return err
			}
			if err := b.fetchAll(); err != nil {
				return err
			}

			rs := b.session.RecordSet()
			if err := export.ToFile(rs, f, out); err != nil {
				return err
			}
			b.presenter.Success(fmt.Sprintf("exported %d rows to %s", rs.Len(), out))
			return nil
		}),
	}

	t.addFlags(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "output format (csv|json), taken from --out when not set")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
