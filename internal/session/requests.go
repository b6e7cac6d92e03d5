package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rebeliceyang/lazydb/internal/db/connection"
	"github.com/rebeliceyang/lazydb/internal/db/metadata"
	"github.com/rebeliceyang/lazydb/internal/db/recordset"
	"github.com/rebeliceyang/lazydb/internal/db/resolver"
	"github.com/rebeliceyang/lazydb/internal/models"
)

// SelectConnection connects the scope to the named profile, replacing any
// previous connection, and publishes its databases, or its tables for
// file-based profiles.
func (s *Session) SelectConnection(name string) {
	s.enqueue("select connection", true, levelConnection, s.opts.ConnectTimeout, func(ctx context.Context, t *ticket) error {
		profile, err := s.profiles.Find(name)
		if err != nil {
			return err
		}

		if _, err := s.manager.Open(ctx, s.scope, profile); err != nil {
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				// the previous handle is gone
				s.setState(nil, "", nil)
			}
			return err
		}
		s.setState(&profile, "", nil)

		if s.stale(t) {
			return errSuperseded
		}
		s.clearTable()

		if metadata.Applicable(profile.Driver) {
			return s.publishDatabases(ctx, t)
		}
		return s.publishTables(ctx, t)
	})
}

// SelectDatabase reconnects a server profile to the named database and
// publishes its tables. File-based profiles have a single database and only
// republish their tables.
func (s *Session) SelectDatabase(name string) {
	s.enqueue("select database", true, levelDatabase, s.opts.ConnectTimeout, func(ctx context.Context, t *ticket) error {
		profile, _, ok := s.Connection()
		if !ok {
			return ErrNoConnection
		}

		if !profile.Driver.IsFileBased() {
			if _, err := s.manager.OpenDatabase(ctx, s.scope, profile, name); err != nil {
				s.setState(nil, "", nil)
				return err
			}
		}
		s.setState(&profile, name, nil)

		if s.stale(t) {
			return errSuperseded
		}
		s.clearTable()
		return s.publishTables(ctx, t)
	})
}

// SelectTable builds the table's projection and loads its rows without a
// filter. On failure the previously loaded table stays in place.
func (s *Session) SelectTable(name string) {
	s.enqueue("select table", true, levelTable, s.opts.QueryTimeout, func(ctx context.Context, t *ticket) error {
		if _, _, ok := s.Connection(); !ok {
			return ErrNoConnection
		}

		var rs *recordset.RecordSet
		err := s.manager.Do(ctx, s.scope, func(h connection.Handle) error {
			spec, err := s.planner.Build(ctx, h, name)
			if err != nil {
				return err
			}
			rs, err = recordset.Load(ctx, h, spec, "", s.recordOptions())
			return err
		})
		if err != nil {
			s.publishKnownCount(t, err)
			return err
		}

		if s.stale(t) {
			return errSuperseded
		}
		prev := s.RecordSet()
		s.setRecords(rs)
		if prev != nil && prev.IsDirty() {
			// the edits of the replaced table are dropped with it
			s.presenter.SetDirty(false)
		}
		s.publishRecords(rs)
		return nil
	})
}

// SubmitFilter reloads the current table with a raw SQL predicate. An empty
// filter selects every row.
func (s *Session) SubmitFilter(filter string) {
	s.enqueue("submit filter", true, levelFilter, s.opts.QueryTimeout, func(ctx context.Context, t *ticket) error {
		return s.withRecords(ctx, func(_ connection.Handle, rs *recordset.RecordSet) error {
			if err := rs.ApplyFilter(ctx, filter); err != nil {
				s.publishKnownCount(t, err)
				return err
			}
			if s.stale(t) {
				return errSuperseded
			}
			s.publishRecords(rs)
			return nil
		})
	})
}

// ActivateCell fetches the full value behind a cell and shows it
func (s *Session) ActivateCell(row, col int) {
	s.enqueue("activate cell", false, 0, s.opts.QueryTimeout, func(ctx context.Context, _ *ticket) error {
		return s.withRecords(ctx, func(h connection.Handle, rs *recordset.RecordSet) error {
			data, err := resolver.ResolveCell(ctx, h, rs, row, col)
			if err != nil {
				return err
			}
			s.presenter.ShowValue(row, col, data)
			return nil
		})
	})
}

// EditCell buffers a new value for a cell
func (s *Session) EditCell(row, col int, value string) {
	s.enqueue("edit cell", false, 0, s.opts.QueryTimeout, func(ctx context.Context, _ *ticket) error {
		return s.withRecords(ctx, func(_ connection.Handle, rs *recordset.RecordSet) error {
			if err := rs.SetValue(row, col, value); err != nil {
				return err
			}
			s.presenter.SetCellValue(row, col, rs.Display(row, col), false)
			return nil
		})
	})
}

// RequestSave submits buffered edits. Rows that fail stay dirty and are
// reported together.
func (s *Session) RequestSave() {
	s.enqueue("save", false, 0, s.opts.QueryTimeout, func(ctx context.Context, _ *ticket) error {
		return s.withRecords(ctx, func(_ connection.Handle, rs *recordset.RecordSet) error {
			return rs.Submit(ctx)
		})
	})
}

// RequestDiscard drops buffered edits and reloads the rows
func (s *Session) RequestDiscard() {
	s.enqueue("discard", false, 0, s.opts.QueryTimeout, func(ctx context.Context, _ *ticket) error {
		return s.withRecords(ctx, func(_ connection.Handle, rs *recordset.RecordSet) error {
			if err := rs.Revert(ctx); err != nil {
				return err
			}
			s.publishRecords(rs)
			return nil
		})
	})
}

// FetchMore loads the next page of a large table
func (s *Session) FetchMore() {
	s.enqueue("fetch more", false, 0, s.opts.QueryTimeout, func(ctx context.Context, _ *ticket) error {
		return s.withRecords(ctx, func(_ connection.Handle, rs *recordset.RecordSet) error {
			from := rs.Len()
			if _, err := rs.FetchMore(ctx); err != nil {
				return err
			}
			s.publishRows(rs, from)
			return nil
		})
	})
}

// SortBy reloads the current table ordered by a column
func (s *Session) SortBy(col int, desc bool) {
	s.enqueue("sort", false, 0, s.opts.QueryTimeout, func(ctx context.Context, _ *ticket) error {
		return s.withRecords(ctx, func(_ connection.Handle, rs *recordset.RecordSet) error {
			columns := rs.Columns()
			if col < 0 || col >= len(columns) {
				return recordset.ErrOutOfRange
			}
			if err := rs.Sort(ctx, columns[col], desc); err != nil {
				return err
			}
			s.publishRecords(rs)
			return nil
		})
	})
}

func (s *Session) withRecords(ctx context.Context, fn func(connection.Handle, *recordset.RecordSet) error) error {
	rs := s.RecordSet()
	if rs == nil {
		return ErrNoTable
	}
	return s.manager.Do(ctx, s.scope, func(h connection.Handle) error {
		return fn(h, rs)
	})
}

func (s *Session) publishDatabases(ctx context.Context, t *ticket) error {
	var names []string
	err := s.manager.Do(ctx, s.scope, func(h connection.Handle) error {
		var err error
		names, err = metadata.ListDatabases(ctx, h)
		return err
	})
	if err != nil {
		return err
	}
	if s.stale(t) {
		return errSuperseded
	}
	s.presenter.SetDatabases(names)
	return nil
}

func (s *Session) publishTables(ctx context.Context, t *ticket) error {
	var names []string
	err := s.manager.Do(ctx, s.scope, func(h connection.Handle) error {
		var err error
		names, err = metadata.ListTables(ctx, h)
		return err
	})
	if err != nil {
		return err
	}
	if s.stale(t) {
		return errSuperseded
	}
	s.presenter.SetTables(names)
	return nil
}

// publishKnownCount shows the row count of a load whose count query
// succeeded before the data query failed.
func (s *Session) publishKnownCount(t *ticket, err error) {
	var loadErr *recordset.LoadError
	if errors.As(err, &loadErr) && loadErr.CountKnown && !s.stale(t) {
		s.presenter.SetRowCount(loadErr.RowCount)
	}
}

func (s *Session) clearTable() {
	s.presenter.SetColumns(nil)
	s.presenter.SetRowCount(0)
	s.presenter.SetDirty(false)
}

// publishRecords shows the loaded rows. Dirty state is published only on
// its transitions, through the record set's OnDirtyChange.
func (s *Session) publishRecords(rs *recordset.RecordSet) {
	s.presenter.SetColumns(rs.Columns())
	s.presenter.SetRowCount(rs.RowCount())
	s.publishRows(rs, 0)
}

func (s *Session) publishRows(rs *recordset.RecordSet, from int) {
	columns := len(rs.Columns())
	for row := from; row < rs.Len(); row++ {
		for col := 0; col < columns; col++ {
			s.presenter.SetCellValue(row, col, rs.Display(row, col), rs.IsRedacted(col))
		}
	}
}

// String describes the session for logs
func (s *Session) String() string {
	profile, database, ok := s.Connection()
	if !ok {
		return fmt.Sprintf("session %s (disconnected)", s.scope)
	}
	return fmt.Sprintf("session %s (%s %s)", s.scope, profile.Label(), database)
}
