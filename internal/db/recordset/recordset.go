// Package recordset materializes the rows of a projected table and buffers
// edits until they are submitted or reverted.
package recordset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/metadata"
	"github.com/rebeliceyang/lazydb/internal/db/projection"
	"github.com/rebeliceyang/lazydb/internal/db/query"
	"github.com/rebeliceyang/lazydb/internal/db/sqlgen"
)

var (
	// ErrOutOfRange is returned for a row or column outside the loaded rows
	ErrOutOfRange = errors.New("cell out of range")
	// ErrRedactedColumn is returned when editing a column whose values were not loaded
	ErrRedactedColumn = errors.New("redacted column cannot be edited")
	// ErrUnsavedChanges is returned when an operation would drop buffered edits
	ErrUnsavedChanges = errors.New("record set has unsaved changes")
	// ErrRowNotUpdated is recorded when an UPDATE matched no row
	ErrRowNotUpdated = errors.New("row no longer matches its stored values")
)

const (
	DefaultPageSize          = 1000
	DefaultFetchAllThreshold = 5000
)

// LoadError reports a failed load. The row count is set when the count
// query succeeded before the data query failed.
type LoadError struct {
	Table      string
	Filter     string
	RowCount   int64
	CountKnown bool
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RowFailure is one row that could not be saved
type RowFailure struct {
	Row int
	Err error
}

// PartialFailure lists the rows a submit could not persist. Rows that were
// saved stay saved.
type PartialFailure struct {
	Saved  int
	Failed []RowFailure
}

func (e *PartialFailure) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = fmt.Sprintf("row %d: %v", f.Row+1, f.Err)
	}
	return fmt.Sprintf("%d of %d rows failed to save: %s",
		len(e.Failed), len(e.Failed)+e.Saved, strings.Join(parts, "; "))
}

// Rows returns the indexes of the rows that failed
func (e *PartialFailure) Rows() []int {
	rows := make([]int, len(e.Failed))
	for i, f := range e.Failed {
		rows[i] = f.Row
	}
	return rows
}

// Options configures a RecordSet
type Options struct {
	// PageSize is the number of rows fetched per page once a table exceeds
	// FetchAllThreshold rows
	PageSize          int
	FetchAllThreshold int
	Logger            *slog.Logger
	// OnDirtyChange is called when the record set turns dirty or clean
	OnDirtyChange func(dirty bool)
}

// RecordSet is the editable materialization of one table projection under
// a filter. Edits are buffered until Submit. A RecordSet is not safe for
// concurrent use.
type RecordSet struct {
	handle connection.Handle
	spec   *projection.Spec
	opts   Options
	logger *slog.Logger

	filter   string
	order    *sqlgen.OrderBy
	rows     [][]any
	rowCount int64
	paged    bool

	edits      map[int]map[int]any
	dirty      bool
	primaryKey []string
}

type snapshot struct {
	rows     [][]any
	rowCount int64
	paged    bool
}

// Load counts and fetches the rows of spec matching filter. An empty filter
// selects every row.
func Load(ctx context.Context, h connection.Handle, spec *projection.Spec, filter string, opts Options) (*RecordSet, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.FetchAllThreshold <= 0 {
		opts.FetchAllThreshold = DefaultFetchAllThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rs := &RecordSet{
		handle: h,
		spec:   spec,
		opts:   opts,
		logger: logger,
		edits:  make(map[int]map[int]any),
	}

	snap, err := rs.fetch(ctx, filter, nil)
	if err != nil {
		return nil, err
	}
	rs.filter = filter
	rs.apply(snap)
	return rs, nil
}

func (rs *RecordSet) fetch(ctx context.Context, filter string, order *sqlgen.OrderBy) (*snapshot, error) {
	table := rs.spec.Table

	countRes, err := rs.handle.Query(ctx, sqlgen.CountQuery(table, filter))
	if err != nil {
		return nil, &LoadError{Table: table, Filter: filter, Err: err}
	}
	first, _ := countRes.First()
	count := toInt64(first)

	limit := 0
	if count > int64(rs.opts.FetchAllThreshold) {
		limit = rs.opts.PageSize
	}

	dataRes, err := rs.handle.Query(ctx, sqlgen.DataQuery(rs.spec.SQL, filter, order, limit, 0))
	if err != nil {
		return nil, &LoadError{Table: table, Filter: filter, RowCount: count, CountKnown: true, Err: err}
	}

	rs.logger.Debug("rows loaded", "table", table, "filter", filter, "count", count, "fetched", len(dataRes.Rows))
	return &snapshot{rows: dataRes.Rows, rowCount: count, paged: limit > 0}, nil
}

func (rs *RecordSet) apply(snap *snapshot) {
	rs.rows = snap.rows
	rs.rowCount = snap.rowCount
	rs.paged = snap.paged
	rs.edits = make(map[int]map[int]any)
	rs.updateDirty()
}

// ApplyFilter reloads with a new filter. Buffered edits are discarded. On
// failure the record set keeps its previous rows and filter.
func (rs *RecordSet) ApplyFilter(ctx context.Context, filter string) error {
	snap, err := rs.fetch(ctx, filter, rs.order)
	if err != nil {
		return err
	}
	rs.filter = filter
	rs.apply(snap)
	return nil
}

// Revert discards buffered edits and reloads the rows from the database
func (rs *RecordSet) Revert(ctx context.Context) error {
	snap, err := rs.fetch(ctx, rs.filter, rs.order)
	if err != nil {
		return err
	}
	rs.apply(snap)
	return nil
}

// Sort reloads ordered by column. It refuses to drop buffered edits.
func (rs *RecordSet) Sort(ctx context.Context, column string, desc bool) error {
	if rs.dirty {
		return ErrUnsavedChanges
	}
	if rs.spec.Index(column) < 0 {
		return fmt.Errorf("unknown column %q", column)
	}

	order := &sqlgen.OrderBy{Column: column, Desc: desc}
	snap, err := rs.fetch(ctx, rs.filter, order)
	if err != nil {
		return err
	}
	rs.order = order
	rs.apply(snap)
	return nil
}

// CanFetchMore reports whether rows remain beyond those loaded
func (rs *RecordSet) CanFetchMore() bool {
	return rs.paged && int64(len(rs.rows)) < rs.rowCount
}

// FetchMore loads the next page and returns the number of rows added
func (rs *RecordSet) FetchMore(ctx context.Context) (int, error) {
	if !rs.CanFetchMore() {
		return 0, nil
	}

	q := sqlgen.DataQuery(rs.spec.SQL, rs.filter, rs.order, rs.opts.PageSize, len(rs.rows))
	res, err := rs.handle.Query(ctx, q)
	if err != nil {
		return 0, &LoadError{Table: rs.spec.Table, Filter: rs.filter, RowCount: rs.rowCount, CountKnown: true, Err: err}
	}
	if len(res.Rows) == 0 {
		// the table shrank since it was counted
		rs.paged = false
		return 0, nil
	}

	rs.rows = append(rs.rows, res.Rows...)
	return len(res.Rows), nil
}

// Table returns the table name
func (rs *RecordSet) Table() string {
	return rs.spec.Table
}

// Spec returns the projection the record set was loaded with
func (rs *RecordSet) Spec() *projection.Spec {
	return rs.spec
}

// Filter returns the current filter text
func (rs *RecordSet) Filter() string {
	return rs.filter
}

// Columns returns the projected column names
func (rs *RecordSet) Columns() []string {
	return rs.spec.Names()
}

// RowCount returns the number of rows matching the filter
func (rs *RecordSet) RowCount() int64 {
	return rs.rowCount
}

// Len returns the number of rows loaded so far
func (rs *RecordSet) Len() int {
	return len(rs.rows)
}

// IsDirty reports whether any edit is buffered
func (rs *RecordSet) IsDirty() bool {
	return rs.dirty
}

// IsRedacted reports whether the column at col holds placeholders
func (rs *RecordSet) IsRedacted(col int) bool {
	return rs.spec.Redacted(col)
}

// Value returns the current value of a cell, including buffered edits
func (rs *RecordSet) Value(row, col int) (any, error) {
	if !rs.inRange(row, col) {
		return nil, ErrOutOfRange
	}
	if edited, ok := rs.edits[row][col]; ok {
		return edited, nil
	}
	return rs.rows[row][col], nil
}

// Display returns the display string of a cell
func (rs *RecordSet) Display(row, col int) string {
	v, err := rs.Value(row, col)
	if err != nil {
		return ""
	}
	return query.FormatValue(v)
}

// DisplayRow returns the display strings of one row
func (rs *RecordSet) DisplayRow(row int) []string {
	out := make([]string, len(rs.spec.Columns))
	for col := range out {
		out[col] = rs.Display(row, col)
	}
	return out
}

// IsEdited reports whether the cell has a buffered edit
func (rs *RecordSet) IsEdited(row, col int) bool {
	_, ok := rs.edits[row][col]
	return ok
}

// SetValue buffers an edit. The database is not touched until Submit.
func (rs *RecordSet) SetValue(row, col int, value any) error {
	if !rs.inRange(row, col) {
		return ErrOutOfRange
	}
	if rs.spec.Redacted(col) {
		return ErrRedactedColumn
	}

	if rs.edits[row] == nil {
		rs.edits[row] = make(map[int]any)
	}
	rs.edits[row][col] = value
	rs.updateDirty()
	return nil
}

// RowKey returns the current values of columns for row, for use as an
// identity predicate.
func (rs *RecordSet) RowKey(row int, columns []string) ([]sqlgen.KeyValue, error) {
	key := make([]sqlgen.KeyValue, len(columns))
	for i, name := range columns {
		col := rs.spec.Index(name)
		if col < 0 {
			return nil, fmt.Errorf("key column %s is not in the projection", name)
		}
		if rs.spec.Redacted(col) {
			return nil, fmt.Errorf("key column %s is redacted", name)
		}
		v, err := rs.Value(row, col)
		if err != nil {
			return nil, err
		}
		key[i] = sqlgen.KeyValue{Column: name, Value: v}
	}
	return key, nil
}

// Submit writes every buffered row to the database. Rows that fail stay
// buffered and are reported in a *PartialFailure; rows that succeed are not
// rolled back.
func (rs *RecordSet) Submit(ctx context.Context) error {
	if len(rs.edits) == 0 {
		return nil
	}

	if rs.primaryKey == nil {
		pk, err := metadata.PrimaryKey(ctx, rs.handle, rs.spec.Table)
		if err != nil {
			return fmt.Errorf("submit %s: %w", rs.spec.Table, err)
		}
		rs.primaryKey = pk
	}

	rows := make([]int, 0, len(rs.edits))
	for row := range rs.edits {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	failure := &PartialFailure{}
	for _, row := range rows {
		if err := rs.submitRow(ctx, row); err != nil {
			rs.logger.Warn("row not saved", "table", rs.spec.Table, "row", row, "error", err)
			failure.Failed = append(failure.Failed, RowFailure{Row: row, Err: err})
			continue
		}
		failure.Saved++
	}

	rs.updateDirty()
	rs.logger.Info("submit finished", "table", rs.spec.Table, "saved", failure.Saved, "failed", len(failure.Failed))

	if len(failure.Failed) > 0 {
		return failure
	}
	return nil
}

func (rs *RecordSet) submitRow(ctx context.Context, row int) error {
	edits := rs.edits[row]

	cols := make([]int, 0, len(edits))
	for col := range edits {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	set := make([]sqlgen.KeyValue, len(cols))
	for i, col := range cols {
		set[i] = sqlgen.KeyValue{
			Column: rs.spec.Columns[col].Name,
			Value:  coerce(edits[col], rs.rows[row][col]),
		}
	}

	key, err := rs.originalKey(row)
	if err != nil {
		return err
	}

	stmt, args := sqlgen.UpdateQuery(rs.handle.Driver(), rs.spec.Table, set, key)
	affected, err := rs.handle.Execute(ctx, stmt, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRowNotUpdated
	}

	for i, col := range cols {
		rs.rows[row][col] = set[i].Value
	}
	delete(rs.edits, row)
	return nil
}

// originalKey identifies row by its loaded values: the primary key when the
// table has one, otherwise every direct column.
func (rs *RecordSet) originalKey(row int) ([]sqlgen.KeyValue, error) {
	var key []sqlgen.KeyValue
	if len(rs.primaryKey) > 0 {
		for _, name := range rs.primaryKey {
			col := rs.spec.Index(name)
			if col < 0 || rs.spec.Redacted(col) {
				return nil, fmt.Errorf("primary key column %s is not available", name)
			}
			key = append(key, sqlgen.KeyValue{Column: name, Value: rs.rows[row][col]})
		}
		return key, nil
	}

	for col, c := range rs.spec.Columns {
		if c.Mode == projection.Redacted {
			continue
		}
		key = append(key, sqlgen.KeyValue{Column: c.Name, Value: rs.rows[row][col]})
	}
	if len(key) == 0 {
		return nil, errors.New("row has no loaded columns to identify it")
	}
	return key, nil
}

func (rs *RecordSet) updateDirty() {
	dirty := len(rs.edits) > 0
	if dirty == rs.dirty {
		return
	}
	rs.dirty = dirty
	if rs.opts.OnDirtyChange != nil {
		rs.opts.OnDirtyChange(dirty)
	}
}

func (rs *RecordSet) inRange(row, col int) bool {
	return row >= 0 && row < len(rs.rows) && col >= 0 && col < len(rs.spec.Columns)
}

// coerce converts edited text to the Go type of the value it replaces
func coerce(value, original any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	trimmed := strings.TrimSpace(s)
	switch original.(type) {
	case int64, int32, int16, int:
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return v
		}
	case float64, float32:
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v
		}
	case bool:
		if v, err := strconv.ParseBool(trimmed); err == nil {
			return v
		}
	case []byte:
		return []byte(s)
	}
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}
