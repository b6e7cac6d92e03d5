package session

// Presenter receives the results of session operations. Methods are called
// from the session worker goroutine, one at a time.
type Presenter interface {
	// ReportError shows a failure. The message is the driver's error text
	// where there is one.
	ReportError(message string)
	SetRowCount(n int64)
	SetDirty(dirty bool)
	SetColumns(names []string)
	SetCellValue(row, col int, display string, redacted bool)
	SetDatabases(names []string)
	SetTables(names []string)
	// ShowValue delivers the full value of an activated cell
	ShowValue(row, col int, value []byte)
}

// NopPresenter discards everything. Embed it to implement only part of
// Presenter.
type NopPresenter struct{}

func (NopPresenter) ReportError(string) {}
func (NopPresenter) SetRowCount(int64) {}
func (NopPresenter) SetDirty(bool) {}
func (NopPresenter) SetColumns([]string) {}
func (NopPresenter) SetCellValue(int, int, string, bool) {}
func (NopPresenter) SetDatabases([]string) {}
func (NopPresenter) SetTables([]string) {}
func (NopPresenter) ShowValue(int, int, []byte) {}
