// Package form normalizes and validates the traversal submission.
package form

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roivol/roivol/pkg/errors"
)

const (
	MsgFolderRequired = "请输入文件夹路径"
	MsgROIRequired    = "请输入ROI文件名"
)

// ValidationError is a rejected submission. Message is user facing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return errors.ErrValidation
}

// Submission is the traversal form: a folder to search and the ROI file name
// shared by every discovered directory.
type Submission struct {
	FolderPath string
	ROIFile    string
}

// Normalize returns a copy with surrounding whitespace removed.
func (s Submission) Normalize() Submission {
	return Submission{
		FolderPath: strings.TrimSpace(s.FolderPath),
		ROIFile:    strings.TrimSpace(s.ROIFile),
	}
}

// Validate checks the normalized submission. The folder is checked first so
// a form with both fields empty reports the folder.
func (s Submission) Validate() error {
	n := s.Normalize()
	if n.FolderPath == "" {
		slog.Warn("form_validation_failed", "field", "folder_path", "reason", "empty")
		return &ValidationError{Field: "folder_path", Message: MsgFolderRequired}
	}
	if n.ROIFile == "" {
		slog.Warn("form_validation_failed", "field", "roi_file", "reason", "empty")
		return &ValidationError{Field: "roi_file", Message: MsgROIRequired}
	}
	return nil
}

func (s Submission) String() string {
	return fmt.Sprintf("%s [%s]", s.FolderPath, s.ROIFile)
}
