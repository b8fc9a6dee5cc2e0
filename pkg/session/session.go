// Package session wires the item store, the traversal client, the job
// coordinator, the table view, the notifier and the exporter for one
// browsing session.
package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roivol/roivol/pkg/errors"
	"github.com/roivol/roivol/pkg/export"
	"github.com/roivol/roivol/pkg/form"
	"github.com/roivol/roivol/pkg/jobs"
	"github.com/roivol/roivol/pkg/notify"
	"github.com/roivol/roivol/pkg/remote"
	"github.com/roivol/roivol/pkg/storage"
	"github.com/roivol/roivol/pkg/store"
	"github.com/roivol/roivol/pkg/traversal"
	"github.com/roivol/roivol/pkg/view"
)

const (
	MsgExported = "数据已成功导出"
	MsgNoData   = "没有数据可导出"
)

// Uploader stores an exported document remotely.
type Uploader interface {
	Upload(ctx context.Context, fileName string, body []byte, contentType string) (string, error)
}

// Options configures a session. Zero values fall back to defaults.
type Options struct {
	ServerURL      string
	RequestTimeout time.Duration
	NotifyDuration time.Duration

	ExportDir      string
	ExportEncoding string

	// Executor builds the job executor; nil runs jobs in-process.
	Executor func(calc jobs.Calculator) (jobs.Executor, error)
	History  traversal.Recorder
	Uploader Uploader

	Colorize   bool
	NotifySink notify.Sink
	OnRow      view.RowFunc
	Now        func() time.Time
}

// ExportResult describes a written export.
type ExportResult struct {
	Path     string
	Location string
	Rows     int
}

// Session is one browsing session.
type Session struct {
	opts Options

	store     *store.Store
	table     *view.Table
	notifier  *notify.Notifier
	traversal *traversal.Client
	jobs      *jobs.Coordinator
}

// New builds a session against the services at opts.ServerURL.
func New(opts Options) (*Session, error) {
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	client, err := remote.NewClient(opts.ServerURL, opts.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var exec jobs.Executor = jobs.NewDirectExecutor(client)
	if opts.Executor != nil {
		exec, err = opts.Executor(client)
		if err != nil {
			return nil, errors.Wrap(err, "job executor init failed")
		}
	}

	s := &Session{
		opts:     opts,
		store:    store.New(),
		table:    view.NewTable(opts.Colorize, opts.OnRow),
		notifier: notify.New(opts.NotifyDuration, opts.NotifySink),
	}
	s.store.Subscribe(s.table)
	s.traversal = traversal.New(client, s.store, s.notifier, opts.History)
	s.jobs = jobs.NewCoordinator(s.store, exec, s.notifier)

	slog.Info("session_ready", "server_url", opts.ServerURL, "export_dir", opts.ExportDir)
	return s, nil
}

// Submit runs a traversal for the form values.
func (s *Session) Submit(ctx context.Context, folderPath, roiFile string) (store.Snapshot, error) {
	return s.traversal.Submit(ctx, form.Submission{FolderPath: folderPath, ROIFile: roiFile})
}

// Compute starts the job of the item at the 0-based index.
func (s *Session) Compute(ctx context.Context, index int) error {
	return s.jobs.Compute(ctx, index)
}

// ComputeAll starts a job for every idle item.
func (s *Session) ComputeAll(ctx context.Context) int {
	return s.jobs.ComputeAll(ctx)
}

// Wait blocks until all started jobs have settled.
func (s *Session) Wait() {
	s.jobs.Wait()
}

// Snapshot returns the current items.
func (s *Session) Snapshot() store.Snapshot {
	return s.store.Snapshot()
}

// Table is the displayed table.
func (s *Session) Table() *view.Table {
	return s.table
}

// Render draws the full table.
func (s *Session) Render() string {
	return s.table.Render()
}

// Notifications returns the messages currently visible.
func (s *Session) Notifications() notify.Messages {
	return s.notifier.Active()
}

// Export writes the current items as CSV into the export directory and, when
// an uploader is configured, uploads the same bytes.
func (s *Session) Export(ctx context.Context) (*ExportResult, error) {
	snap := s.store.Snapshot()

	data, err := export.Encode(snap.Items)
	if err != nil {
		if errors.Is(err, errors.ErrNoData) {
			s.notifier.Error(MsgNoData)
		} else {
			s.notifier.Error(err.Error())
		}
		return nil, err
	}

	data, err = export.Transcode(data, s.opts.ExportEncoding)
	if err != nil {
		s.notifier.Error(err.Error())
		return nil, err
	}

	name := export.FileName(s.opts.Now())
	if err := os.MkdirAll(s.opts.ExportDir, 0755); err != nil {
		s.notifier.Error(err.Error())
		return nil, errors.Wrap(err, "failed to create export directory")
	}
	path := filepath.Join(s.opts.ExportDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.notifier.Error(err.Error())
		return nil, errors.Wrap(err, "failed to write export")
	}

	result := &ExportResult{Path: path, Rows: len(snap.Items)}
	slog.Info("export_written", "path", path, "rows", result.Rows, "encoding", s.opts.ExportEncoding)

	if s.opts.Uploader != nil {
		location, err := s.opts.Uploader.Upload(ctx, name, data, contentType(s.opts.ExportEncoding))
		if err != nil {
			s.notifier.Error(err.Error())
			return result, err
		}
		result.Location = location
	}

	s.notifier.Success(MsgExported)
	return result, nil
}

// Close stops notification timers.
func (s *Session) Close() {
	s.notifier.Close()
}

func contentType(encoding string) string {
	switch encoding {
	case "", export.EncodingUTF8, "utf8", "UTF-8":
		return storage.CSVContentType
	default:
		return "text/csv;charset=" + encoding
	}
}
