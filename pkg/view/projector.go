// Package view projects the item store into table rows. Projection is a pure
// function of item state; Table keeps the last projection and refreshes a
// single row when a single item changes.
package view

import (
	"strconv"

	"github.com/roivol/roivol/pkg/store"
)

const (
	ResultNone       = "-"
	ResultProcessing = "计算中..."
	ResultFailed     = "计算失败"

	ActionIdle = "计算体积"
	ActionBusy = "计算中..."

	// Placeholder is the only row shown for an empty traversal.
	Placeholder = "未找到DICOM目录"
)

// Row is the displayed form of one item.
type Row struct {
	Index      int
	FolderPath string
	ROIFile    string

	Status        store.Status
	Dot           string
	Action        string
	ActionEnabled bool
	Result        string

	IsProcessing bool
	HasResult    bool
	Failed       bool
}

// ProjectRow derives the row for one item.
func ProjectRow(index int, item store.Item) Row {
	row := Row{
		Index:      index,
		FolderPath: item.FolderPath,
		ROIFile:    item.ROIFile,
	}
	applyStatus(&row, item)
	return row
}

// Project derives all rows for a snapshot.
func Project(snap store.Snapshot) []Row {
	rows := make([]Row, len(snap.Items))
	for i, item := range snap.Items {
		rows[i] = ProjectRow(i, item)
	}
	return rows
}

// applyStatus sets the cells that depend on job state: the status dot, the
// action and the result. Identity cells are left alone.
func applyStatus(row *Row, item store.Item) {
	row.Status = item.Status
	row.IsProcessing = item.IsProcessing()
	row.HasResult = item.HasResult()
	row.Failed = !row.IsProcessing && !row.HasResult && item.Failure != ""
	row.Dot = dot(item.Status)

	row.ActionEnabled = !row.IsProcessing
	row.Action = ActionIdle
	if row.IsProcessing {
		row.Action = ActionBusy
	}

	switch {
	case row.IsProcessing:
		row.Result = ResultProcessing
	case row.HasResult:
		row.Result = item.Volume.String()
	case row.Failed:
		row.Result = ResultFailed
	default:
		row.Result = ResultNone
	}
}

func dot(status store.Status) string {
	switch status {
	case store.Processing:
		return "◐"
	case store.Completed:
		return "●"
	default:
		return "○"
	}
}

// Label is the 1-based row number shown to users.
func (r Row) Label() string {
	return strconv.Itoa(r.Index + 1)
}
