package view

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/roivol/roivol/pkg/store"
)

var headers = table.Row{"#", "状态", "子文件夹全路径", "ROI文件名", "操作", "计算结果"}

// RowFunc receives a row after a partial re-render. It runs synchronously in
// the store's notification path: the next store mutation waits for it.
type RowFunc func(row Row)

// Table is the displayed item table. It observes the store: a replacement
// re-projects every row, a single item update re-projects only that row's
// status, action and result.
type Table struct {
	colorize bool
	onRow    RowFunc

	mu         sync.Mutex
	generation uint64
	rows       []Row
}

// NewTable creates an empty table. onRow may be nil.
func NewTable(colorize bool, onRow RowFunc) *Table {
	return &Table{colorize: colorize, onRow: onRow}
}

// ColorEnabled reports whether f is a terminal that can show coloured status dots.
func ColorEnabled(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Replaced implements store.Observer.
func (t *Table) Replaced(snap store.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation = snap.Generation
	t.rows = Project(snap)
}

// Updated implements store.Observer.
func (t *Table) Updated(ref store.Ref, item store.Item) {
	t.mu.Lock()
	if ref.Generation != t.generation || ref.Index < 0 || ref.Index >= len(t.rows) {
		t.mu.Unlock()
		return
	}
	row := &t.rows[ref.Index]
	applyStatus(row, item)
	updated := *row
	t.mu.Unlock()

	if t.onRow != nil {
		t.onRow(updated)
	}
}

// Rows returns a copy of the displayed rows.
func (t *Table) Rows() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]Row, len(t.rows))
	copy(rows, t.rows)
	return rows
}

// Render draws the whole table.
func (t *Table) Render() string {
	rows := t.Rows()

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(headers)

	if len(rows) == 0 {
		placeholder := make(table.Row, len(headers))
		for i := range placeholder {
			placeholder[i] = Placeholder
		}
		tw.AppendRow(placeholder, table.RowConfig{AutoMerge: true})
		tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignCenter}})
		return tw.Render()
	}

	for _, r := range rows {
		tw.AppendRow(table.Row{r.Label(), t.paintDot(r), r.FolderPath, r.ROIFile, action(r), t.paintResult(r)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return tw.Render()
}

// RenderRow draws one row as a single line.
func (t *Table) RenderRow(row Row) string {
	return fmt.Sprintf("[%s] %s %-10s %s  %s  %s",
		row.Label(), t.paintDot(row), row.Status, row.FolderPath, row.ROIFile,
		strings.ReplaceAll(t.paintResult(row), "\n", " "))
}

// Lines draws every row with RenderRow, in order.
func (t *Table) Lines() []string {
	rows := t.Rows()
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = t.RenderRow(r)
	}
	return lines
}

func action(r Row) string {
	if r.ActionEnabled {
		return "[" + r.Action + "]"
	}
	return r.Action
}

func (t *Table) paintDot(r Row) string {
	if !t.colorize {
		return r.Dot
	}
	switch r.Status {
	case store.Processing:
		return text.Colors{text.FgYellow}.Sprint(r.Dot)
	case store.Completed:
		return text.Colors{text.FgGreen}.Sprint(r.Dot)
	default:
		return text.Colors{text.FgHiBlack}.Sprint(r.Dot)
	}
}

func (t *Table) paintResult(r Row) string {
	if !t.colorize {
		return r.Result
	}
	switch {
	case r.HasResult:
		return text.Colors{text.FgGreen}.Sprint(r.Result)
	case r.Failed:
		return text.Colors{text.FgRed}.Sprint(r.Result)
	default:
		return r.Result
	}
}
