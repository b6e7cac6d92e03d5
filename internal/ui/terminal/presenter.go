// Package terminal renders session output as plain terminal text: tables
// through go-pretty and colors through lipgloss.
package terminal

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rebeliceyang/lazydb/internal/db/projection"
	"github.com/rebeliceyang/lazydb/internal/db/query"
	"github.com/rebeliceyang/lazydb/internal/session"
	"github.com/rebeliceyang/lazydb/internal/ui/theme"
)

var _ session.Presenter = (*Presenter)(nil)

// Options configures a Presenter
type Options struct {
	Theme theme.Theme
	// MaxCellWidth truncates wide cells when rendering; 0 disables it
	MaxCellWidth int
}

type styles struct {
	err      lipgloss.Style
	warn     lipgloss.Style
	success  lipgloss.Style
	header   lipgloss.Style
	null     lipgloss.Style
	redacted lipgloss.Style
	edited   lipgloss.Style
}

func newStyles(t theme.Theme) styles {
	return styles{
		err:      lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		warn:     lipgloss.NewStyle().Foreground(t.Warning),
		success:  lipgloss.NewStyle().Foreground(t.Success),
		header:   lipgloss.NewStyle().Foreground(t.TableHeader).Bold(true),
		null:     lipgloss.NewStyle().Foreground(t.Null).Italic(true),
		redacted: lipgloss.NewStyle().Foreground(t.Redacted),
		edited:   lipgloss.NewStyle().Foreground(t.Edited).Underline(true),
	}
}

type cell struct {
	display  string
	redacted bool
	edited   bool
}

// Presenter collects what a session publishes and renders it on demand.
// Errors are written as soon as they are reported.
type Presenter struct {
	out    io.Writer
	errOut io.Writer
	styles styles
	opts   Options

	mu        sync.Mutex
	columns   []string
	cells     map[int]map[int]cell
	rowCount  int64
	dirty     bool
	databases []string
	tables    []string
	values    map[[2]int][]byte
	errors    []string
}

// NewPresenter writes tables to out and errors to errOut
func NewPresenter(out, errOut io.Writer, opts Options) *Presenter {
	if opts.Theme.Name == "" {
		opts.Theme = theme.DefaultTheme()
	}
	return &Presenter{
		out:    out,
		errOut: errOut,
		styles: newStyles(opts.Theme),
		opts:   opts,
		cells:  make(map[int]map[int]cell),
		values: make(map[[2]int][]byte),
	}
}

// ReportError implements session.Presenter
func (p *Presenter) ReportError(message string) {
	p.mu.Lock()
	p.errors = append(p.errors, message)
	p.mu.Unlock()

	_, _ = fmt.Fprintln(p.errOut, p.styles.err.Render("error: "+message))
}

// SetRowCount implements session.Presenter
func (p *Presenter) SetRowCount(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rowCount = n
}

// SetDirty implements session.Presenter
func (p *Presenter) SetDirty(dirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = dirty
	if dirty {
		return
	}
	for _, cols := range p.cells {
		for col, c := range cols {
			c.edited = false
			cols[col] = c
		}
	}
}

// SetColumns implements session.Presenter. New columns start a new grid.
func (p *Presenter) SetColumns(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.columns = append([]string(nil), names...)
	p.cells = make(map[int]map[int]cell)
}

// SetCellValue implements session.Presenter. A cell published again after
// its first value is marked as edited.
func (p *Presenter) SetCellValue(row, col int, display string, redacted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cells[row] == nil {
		p.cells[row] = make(map[int]cell)
	}
	prev, seen := p.cells[row][col]
	p.cells[row][col] = cell{
		display:  display,
		redacted: redacted,
		edited:   p.dirty && seen && prev.display != display,
	}
}

// SetDatabases implements session.Presenter
func (p *Presenter) SetDatabases(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.databases = append([]string(nil), names...)
}

// SetTables implements session.Presenter
func (p *Presenter) SetTables(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tables = append([]string(nil), names...)
}

// ShowValue implements session.Presenter
func (p *Presenter) ShowValue(row, col int, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[[2]int{row, col}] = value
}

// Errors returns the messages reported so far
func (p *Presenter) Errors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.errors...)
}

// Databases returns the last published database list
func (p *Presenter) Databases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.databases
}

// Tables returns the last published table list
func (p *Presenter) Tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tables
}

// Value returns the resolved value of a cell
func (p *Presenter) Value(row, col int) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[[2]int{row, col}]
	return v, ok
}

// RenderList prints names one per line under a title
func (p *Presenter) RenderList(title string, names []string) {
	_, _ = fmt.Fprintln(p.out, p.styles.header.Render(title))
	if len(names) == 0 {
		_, _ = fmt.Fprintln(p.out, "  (none)")
		return
	}
	for _, name := range names {
		_, _ = fmt.Fprintln(p.out, "  "+name)
	}
}

// RenderGrid prints the loaded rows as a table followed by a row count
func (p *Presenter) RenderGrid() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.columns) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(p.columns)+1)
	header[0] = "#"
	for i, name := range p.columns {
		header[i+1] = p.styles.header.Render(name)
	}
	t.AppendHeader(header)

	rows := make([]int, 0, len(p.cells))
	for row := range p.cells {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	for _, row := range rows {
		r := make(table.Row, len(p.columns)+1)
		r[0] = row + 1
		for col := range p.columns {
			r[col+1] = p.renderCell(p.cells[row][col])
		}
		t.AppendRow(r)
	}

	if p.opts.MaxCellWidth > 0 {
		configs := make([]table.ColumnConfig, len(p.columns))
		for i := range p.columns {
			configs[i] = table.ColumnConfig{
				Number:           i + 2,
				WidthMax:         p.opts.MaxCellWidth,
				WidthMaxEnforcer: text.Trim,
			}
		}
		t.SetColumnConfigs(configs)
	}

	t.Render()

	footer := fmt.Sprintf("(%d of %d rows)", len(rows), p.rowCount)
	if p.dirty {
		footer += " " + p.styles.warn.Render("modified")
	}
	_, _ = fmt.Fprintln(p.out, footer)
}

func (p *Presenter) renderCell(c cell) string {
	switch {
	case c.redacted && c.display == projection.Placeholder:
		return p.styles.redacted.Render(c.display)
	case c.edited:
		return p.styles.edited.Render(c.display)
	case c.display == query.NullDisplay:
		return p.styles.null.Render(c.display)
	default:
		return c.display
	}
}

// Success prints a confirmation line
func (p *Presenter) Success(message string) {
	_, _ = fmt.Fprintln(p.out, p.styles.success.Render(message))
}
