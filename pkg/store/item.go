// Package store holds the discovered DICOM items of one browsing session and
// their job status. It is the single source of truth the view is projected from.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Status is the job lifecycle state of an item.
type Status int

const (
	Pending Status = iota
	Processing
	Completed
	// Failed is never stored: a failed job reverts its item to Pending.
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Volume is a computation result as returned by the volume service: either a
// number or a preformatted string (multi-label results are text).
type Volume struct {
	text    string
	number  float64
	numeric bool
}

// NumberVolume wraps a numeric result.
func NumberVolume(f float64) Volume {
	return Volume{number: f, numeric: true}
}

// TextVolume wraps a textual result.
func TextVolume(s string) Volume {
	return Volume{text: s}
}

// Float64 returns the numeric value and whether the volume is numeric.
func (v Volume) Float64() (float64, bool) {
	return v.number, v.numeric
}

// String renders the value the way it is shown in the table and the CSV.
func (v Volume) String() string {
	if !v.numeric {
		return v.text
	}
	abs := math.Abs(v.number)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	}
	return strconv.FormatFloat(v.number, 'f', -1, 64)
}

// MarshalJSON encodes the volume back into its original JSON kind.
func (v Volume) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return json.Marshal(v.number)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON number or string.
func (v *Volume) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextVolume(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("volume must be a number or a string: %s", data)
	}
	*v = NumberVolume(f)
	return nil
}

// Entry is one (folder, ROI) pair returned by a traversal.
type Entry struct {
	FolderPath string `json:"folder_path"`
	ROIFile    string `json:"roi_file"`
}

// Item is one discovered sub-directory and its computation state.
type Item struct {
	FolderPath string
	ROIFile    string
	Status     Status
	// Volume is set only while Status is Completed.
	Volume *Volume
	// Failure holds the reason of the last failed job; cleared on the next dispatch.
	Failure string
}

// HasResult reports whether a volume is present.
func (i Item) HasResult() bool {
	return i.Volume != nil
}

// IsProcessing reports whether a job is in flight for the item.
func (i Item) IsProcessing() bool {
	return i.Status == Processing
}

// Ref identifies an item across asynchronous job settlement: the generation
// pins the traversal result the index belongs to.
type Ref struct {
	Generation uint64
	Index      int
}
