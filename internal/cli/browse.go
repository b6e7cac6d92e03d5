package cli

import (
	"fmt"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/rebeliceyang/lazydb/internal/app"
	"github.com/rebeliceyang/lazydb/internal/db/recordset"
	"github.com/rebeliceyang/lazydb/internal/filter"
	"github.com/rebeliceyang/lazydb/internal/jsonb"
	"github.com/rebeliceyang/lazydb/internal/models"
	"github.com/rebeliceyang/lazydb/internal/session"
	"github.com/rebeliceyang/lazydb/internal/ui/terminal"
	"github.com/spf13/cobra"
)

// tableTarget selects what a command browses
type tableTarget struct {
	profile  string
	database string
	table    string
	filter   string
	where    []string
}

func (t *tableTarget) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.database, "database", "d", "", "database to use (server profiles)")
	cmd.Flags().StringVarP(&t.filter, "filter", "f", "", "SQL predicate applied to the table")
	cmd.Flags().StringArrayVarP(&t.where, "where", "w", nil, "column condition such as age>=30 or name~a% (repeatable)")
}

// predicate combines --filter with the --where conditions
func (t *tableTarget) predicate(d models.Driver) (string, error) {
	var group filter.Group
	for _, w := range t.where {
		cond, err := filter.ParseCondition(w)
		if err != nil {
			return "", err
		}
		group.Conditions = append(group.Conditions, cond)
	}
	built, err := filter.NewBuilder(d).Build(group)
	if err != nil {
		return "", err
	}
	return filter.Combine(t.filter, built), nil
}

// browser is a session publishing to a terminal presenter
type browser struct {
	session   *session.Session
	presenter *terminal.Presenter
}

func newBrowser(cmd *cobra.Command, a *app.App) *browser {
	p := newPresenter(cmd, a)
	return &browser{session: a.NewSession(p), presenter: p}
}

// wait blocks until queued requests finish and fails if any reported an
// error.
func (b *browser) wait() error {
	b.session.Wait()
	if len(b.presenter.Errors()) > 0 {
		return errReported
	}
	return nil
}

func (b *browser) connect(profile, database string) error {
	b.session.SelectConnection(profile)
	if database != "" {
		b.session.SelectDatabase(database)
	}
	return b.wait()
}

func (b *browser) open(t tableTarget) (*recordset.RecordSet, error) {
	if err := b.connect(t.profile, t.database); err != nil {
		return nil, err
	}
	profile, _, _ := b.session.Connection()
	predicate, err := t.predicate(profile.Driver)
	if err != nil {
		return nil, err
	}

	b.session.SelectTable(t.table)
	if predicate != "" {
		b.session.SubmitFilter(predicate)
	}
	if err := b.wait(); err != nil {
		return nil, err
	}
	rs := b.session.RecordSet()
	if rs == nil {
		return nil, session.ErrNoTable
	}
	return rs, nil
}

func (b *browser) fetchAll() error {
	for {
		rs := b.session.RecordSet()
		if rs == nil || !rs.CanFetchMore() {
			return nil
		}
		b.session.FetchMore()
		if err := b.wait(); err != nil {
			return err
		}
	}
}

func (b *browser) close() {
	_ = b.session.Close()
}

// columnIndex accepts a column name or a 1-based column number
func columnIndex(rs *recordset.RecordSet, col string) (int, error) {
	for i, name := range rs.Columns() {
		if name == col {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(col); err == nil && n >= 1 && n <= len(rs.Columns()) {
		return n - 1, nil
	}
	return 0, fmt.Errorf("unknown column %q in %s", col, rs.Table())
}

func rowIndex(row int) (int, error) {
	if row < 1 {
		return 0, fmt.Errorf("row must be 1 or greater, got %d", row)
	}
	return row - 1, nil
}

func newDatabasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "databases <profile>",
		Short: "List the databases of a server profile",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			b := newBrowser(cmd, a)
			defer b.close()

			if err := b.connect(args[0], ""); err != nil {
				return err
			}
			b.presenter.RenderList("Databases", b.presenter.Databases())
			return nil
		}),
	}
}

func newTablesCommand() *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "tables <profile>",
		Short: "List the tables of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			b := newBrowser(cmd, a)
			defer b.close()

			if err := b.connect(args[0], database); err != nil {
				return err
			}
			b.presenter.RenderList("Tables", b.presenter.Tables())
			return nil
		}),
	}

	cmd.Flags().StringVarP(&database, "database", "d", "", "database to use (server profiles)")
	return cmd
}

func newBrowseCommand() *cobra.Command {
	var (
		t      tableTarget
		sortBy string
		desc   bool
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "browse <profile> <table>",
		Short: "Show the rows of a table",
		Long: `Show the rows of a table. Large text and binary columns are shown as
[BLOB]; use "lazydb resolve" to read one of them.`,
		Example: `  lazydb browse local users
  lazydb browse local users --filter "age > 30" --sort name --desc
  lazydb browse local users -w "name~a%" -w "bio!=null"
  lazydb browse prod orders -d shop --all`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			t.profile, t.table = args[0], args[1]

			b := newBrowser(cmd, a)
			defer b.close()

			rs, err := b.open(t)
			if err != nil {
				return err
			}

			if sortBy != "" {
				col, err := columnIndex(rs, sortBy)
				if err != nil {
					return err
				}
				b.session.SortBy(col, desc)
				if err := b.wait(); err != nil {
					return err
				}
			}

			if all {
				if err := b.fetchAll(); err != nil {
					return err
				}
			}

			b.presenter.RenderGrid()
			return nil
		}),
	}

	t.addFlags(cmd)
	cmd.Flags().StringVarP(&sortBy, "sort", "s", "", "column to order by")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "load every row instead of the first page")
	return cmd
}

func newResolveCommand() *cobra.Command {
	var (
		t           tableTarget
		row         int
		col         string
		toClipboard bool
		pretty      bool
		path        string
	)

	cmd := &cobra.Command{
		Use:   "resolve <profile> <table>",
		Short: "Print the full value of a cell",
		Example: `  # Print the bio of the third row
  lazydb resolve local users --row 3 --col bio

  # Copy it to the clipboard instead
  lazydb resolve local users --row 3 --col bio --copy

  # Print one field of a JSON document
  lazydb resolve prod events --row 1 --col payload --path user.tags[0]`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			t.profile, t.table = args[0], args[1]

			r, err := rowIndex(row)
			if err != nil {
				return err
			}

			b := newBrowser(cmd, a)
			defer b.close()

			rs, err := b.open(t)
			if err != nil {
				return err
			}
			c, err := columnIndex(rs, col)
			if err != nil {
				return err
			}

			b.session.ActivateCell(r, c)
			if err := b.wait(); err != nil {
				return err
			}
			value, _ := b.presenter.Value(r, c)

			text, err := formatResolved(value, pretty, path)
			if err != nil {
				return err
			}

			if toClipboard {
				if err := clipboard.WriteAll(text); err != nil {
					return fmt.Errorf("failed to copy to clipboard: %w", err)
				}
				b.presenter.Success(fmt.Sprintf("copied %d bytes", len(text)))
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}),
	}

	t.addFlags(cmd)
	cmd.Flags().IntVarP(&row, "row", "r", 1, "row number, starting at 1")
	cmd.Flags().StringVarP(&col, "col", "c", "", "column name or number")
	cmd.Flags().BoolVar(&toClipboard, "copy", false, "copy the value to the clipboard")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON values")
	cmd.Flags().StringVar(&path, "path", "", "print the part of a JSON value at this path")
	_ = cmd.MarkFlagRequired("col")
	return cmd
}

// formatResolved renders a resolved value, optionally as indented JSON or as
// the JSON value found at path.
func formatResolved(value []byte, pretty bool, path string) (string, error) {
	if path != "" {
		p, err := jsonb.ParsePath(path)
		if err != nil {
			return "", err
		}
		v, err := jsonb.Lookup(value, p)
		if err != nil {
			return "", fmt.Errorf("%s: %w", p, err)
		}
		return jsonb.FormatValue(v)
	}
	if pretty && jsonb.IsJSON(value) {
		return jsonb.Format(value)
	}
	return string(value), nil
}

func newEditCommand() *cobra.Command {
	var (
		t     tableTarget
		row   int
		col   string
		value string
	)

	cmd := &cobra.Command{
		Use:     "edit <profile> <table>",
		Short:   "Change the value of a cell and save it",
		Example: `  lazydb edit local employees --row 2 --col age --value 41`,
		Args:    cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			t.profile, t.table = args[0], args[1]

			r, err := rowIndex(row)
			if err != nil {
				return err
			}

			b := newBrowser(cmd, a)
			defer b.close()

			rs, err := b.open(t)
			if err != nil {
				return err
			}
			c, err := columnIndex(rs, col)
			if err != nil {
				return err
			}

			b.session.EditCell(r, c, value)
			b.session.RequestSave()
			if err := b.wait(); err != nil {
				return err
			}

			b.presenter.Success(fmt.Sprintf("saved %s.%s row %d", rs.Table(), rs.Columns()[c], row))
			return nil
		}),
	}

	t.addFlags(cmd)
	cmd.Flags().IntVarP(&row, "row", "r", 1, "row number, starting at 1")
	cmd.Flags().StringVarP(&col, "col", "c", "", "column name or number")
	cmd.Flags().StringVar(&value, "value", "", "new value")
	_ = cmd.MarkFlagRequired("col")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}
