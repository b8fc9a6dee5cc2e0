// Package traversal discovers the DICOM directories of a submitted folder and
// replaces the item store with them.
package traversal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/form"
	"github.com/roivol/roivol/pkg/remote"
	"github.com/roivol/roivol/pkg/store"
)

// Service is the remote discovery call.
type Service interface {
	TraverseFolder(ctx context.Context, folderPath, roiFile string) ([]store.Entry, error)
}

// Notifier surfaces the outcome to the user.
type Notifier interface {
	Success(message string)
	Error(message string)
	// Clear hides every visible message.
	Clear()
}

// Recorder keeps the history of successful submissions.
type Recorder interface {
	RecordSubmission(ctx context.Context, folderPath, roiFile string, itemCount int) error
}

// Client runs traversals for one session.
type Client struct {
	service  Service
	store    *store.Store
	notifier Notifier
	history  Recorder
}

// New creates a traversal client. history may be nil.
func New(service Service, s *store.Store, notifier Notifier, history Recorder) *Client {
	return &Client{service: service, store: s, notifier: notifier, history: history}
}

// Submit validates the form, calls the discovery service and, on success,
// replaces the whole store. Invalid input is rejected without a request; any
// failure leaves the store untouched.
func (c *Client) Submit(ctx context.Context, sub form.Submission) (store.Snapshot, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		c.notifier.Error(err.Error())
		return store.Snapshot{}, err
	}

	c.notifier.Clear()
	slog.Info("traversal_started", "folder_path", sub.FolderPath, "roi_file", sub.ROIFile)

	entries, err := c.service.TraverseFolder(ctx, sub.FolderPath, sub.ROIFile)
	if err != nil {
		slog.Error("traversal_failed", "folder_path", sub.FolderPath, "error", err)
		c.notifier.Error(failureMessage(err))
		return store.Snapshot{}, errors.Wrap(err, "traversal failed")
	}

	snap := c.store.Replace(entries)
	slog.Info("traversal_complete", "folder_path", sub.FolderPath, "item_count", len(snap.Items), "generation", snap.Generation)
	c.notifier.Success(fmt.Sprintf("成功遍历文件夹，找到 %d 个DICOM目录", len(snap.Items)))

	if c.history != nil {
		if err := c.history.RecordSubmission(ctx, sub.FolderPath, sub.ROIFile, len(snap.Items)); err != nil {
			slog.Warn("history_record_failed", "folder_path", sub.FolderPath, "error", err)
		}
	}

	return snap, nil
}

func failureMessage(err error) string {
	var serviceErr *remote.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Message
	}
	return "遍历文件夹失败: " + err.Error()
}
