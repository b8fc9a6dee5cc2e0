package db

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roivol/roivol/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the submission history
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// RecordSubmission inserts a submission or bumps the existing one.
func (r *Repository) RecordSubmission(ctx context.Context, folderPath, roiFile string, itemCount int) error {
	slog.Info("database_record_submission", "folder_path", folderPath, "roi_file", roiFile, "item_count", itemCount)

	query := `
		INSERT INTO submissions (folder_path, roi_file, item_count)
		VALUES (?, ?, ?)
		ON CONFLICT(folder_path, roi_file) DO UPDATE SET
		    item_count = excluded.item_count,
		    use_count = use_count + 1,
		    last_used_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, folderPath, roiFile, itemCount); err != nil {
		slog.Error("database_record_failed", "folder_path", folderPath, "error", err)
		return errors.Wrap(err, "failed to record submission")
	}
	return nil
}

// Recent lists submissions, most recently used first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]*Submission, error) {
	slog.Info("database_list_submissions", "limit", limit)

	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, folder_path, roi_file, item_count, use_count, created_at, last_used_at
		FROM submissions ORDER BY last_used_at DESC, id DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list submissions")
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.FolderPath, &s.ROIFile, &s.ItemCount, &s.UseCount, &s.CreatedAt, &s.LastUsedAt); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		subs = append(subs, &s)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "submission_count", len(subs))
	return subs, nil
}

// Clear removes every remembered submission
func (r *Repository) Clear(ctx context.Context) (int64, error) {
	slog.Info("database_clear_submissions")

	result, err := r.db.ExecContext(ctx, `DELETE FROM submissions`)
	if err != nil {
		slog.Error("database_clear_failed", "error", err)
		return 0, errors.Wrap(err, "failed to clear submissions")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return n, nil
}
