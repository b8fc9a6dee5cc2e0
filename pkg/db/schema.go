package db

// Schema defines the SQLite schema for the submission history: one row per
// successful traversal. Computation results are never stored.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    folder_path TEXT NOT NULL,
    roi_file TEXT NOT NULL,
    item_count INTEGER NOT NULL DEFAULT 0,
    use_count INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_used_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(folder_path, roi_file)
);

CREATE INDEX IF NOT EXISTS idx_submissions_last_used_at ON submissions(last_used_at);
`

// Submission is a remembered folder + ROI pair.
type Submission struct {
	ID         int64
	FolderPath string
	ROIFile    string
	ItemCount  int
	UseCount   int
	CreatedAt  string
	LastUsedAt string
}
