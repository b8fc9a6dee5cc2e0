package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roivol/roivol/internal/config"
	"github.com/roivol/roivol/pkg/db"
	"github.com/roivol/roivol/pkg/errors"
	appfsm "github.com/roivol/roivol/pkg/fsm"
	"github.com/roivol/roivol/pkg/jobs"
	"github.com/roivol/roivol/pkg/notify"
	"github.com/roivol/roivol/pkg/session"
	"github.com/roivol/roivol/pkg/storage"
	"github.com/roivol/roivol/pkg/view"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, lockPath string) error {
	if sqlitePath != "" {
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return errors.Wrap(err, "failed to create database directory")
		}
	}

	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	if lockPath != "" {
		if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
			return errors.Wrap(err, "failed to create lock directory")
		}
	}

	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// runtime is a session plus the local resources it holds.
type runtime struct {
	*session.Session

	lock *session.Lock
	repo *db.Repository
	exec *appfsm.Executor
}

// openSession builds a session from cfg. Notifications and per-row updates
// are printed to out when onRow is set.
func openSession(ctx context.Context, cfg *config.Config, out io.Writer, onRow func(*view.Table, view.Row)) (*runtime, error) {
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.LockPath); err != nil {
		return nil, err
	}

	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	lock, err := session.AcquireLock(cfg.LockPath)
	if err != nil {
		return nil, err
	}
	rt.lock = lock

	colorize := false
	if f, isFile := out.(*os.File); isFile {
		colorize = view.ColorEnabled(f)
	}

	opts := session.Options{
		ServerURL:      cfg.ServerURL,
		RequestTimeout: cfg.RequestTimeout,
		NotifyDuration: cfg.NotifyDuration,
		ExportDir:      cfg.ExportDir,
		ExportEncoding: cfg.ExportEncoding,
		Colorize:       colorize,
		NotifySink:     notify.WriterSink(out, colorize),
	}

	if cfg.SQLitePath != "" {
		repo, err := db.NewRepository(cfg.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "db init failed")
		}
		rt.repo = repo
		opts.History = repo
	}

	if cfg.FSMDBPath != "" {
		opts.Executor = func(calc jobs.Calculator) (jobs.Executor, error) {
			exec, err := appfsm.NewExecutor(ctx, cfg.FSMDBPath, calc)
			if err != nil {
				return nil, err
			}
			rt.exec = exec
			return exec, nil
		}
	}

	if cfg.S3Bucket != "" {
		uploader, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			return nil, errors.Wrap(err, "S3 client failed")
		}
		opts.Uploader = uploader
	}

	var table *view.Table
	if onRow != nil {
		opts.OnRow = func(r view.Row) { onRow(table, r) }
	}

	s, err := session.New(opts)
	if err != nil {
		return nil, errors.Wrap(err, "session init failed")
	}
	rt.Session = s
	table = s.Table()

	ok = true
	return rt, nil
}

// Close waits for running jobs and releases local resources.
func (rt *runtime) Close() {
	if rt.Session != nil {
		rt.Wait()
		rt.Session.Close()
	}
	if rt.exec != nil {
		rt.exec.Close(10 * time.Second)
	}
	if rt.repo != nil {
		if err := rt.repo.Close(); err != nil {
			slog.Warn("database_close_failed", "error", err)
		}
	}
	if rt.lock != nil {
		if err := rt.lock.Release(); err != nil {
			slog.Warn("session_lock_release_failed", "error", err)
		}
	}
}
