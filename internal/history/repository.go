package history

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingDownloads(ctx context.Context) ([]*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	SetResult(ctx context.Context, id, path string, size int64) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, remote_id, video_uri, overlay_count, asset_count, status, progress, polls,
	error, result_url, result_path, result_bytes, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, nullString(j.RemoteID), j.VideoURI, j.OverlayCount, j.AssetCount, j.Status, j.Progress, j.Polls,
		nullString(j.Error), nullString(j.ResultURL), nullString(j.ResultPath), j.ResultBytes,
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

// GetJob returns nil, nil when no job has the id.
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListPendingDownloads returns completed jobs whose result has not been
// fetched yet, oldest first.
func (r *SQLiteRepository) ListPendingDownloads(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'completed' AND result_path IS NULL AND remote_id IS NOT NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// UpdateJob writes the mutable tracking fields. The result location is
// owned by SetResult.
func (r *SQLiteRepository) UpdateJob(ctx context.Context, j *Job) error {
	j.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET remote_id = ?, status = ?, progress = ?, polls = ?, error = ?, result_url = ?, updated_at = ?
		WHERE id = ?
	`, nullString(j.RemoteID), j.Status, j.Progress, j.Polls, nullString(j.Error), nullString(j.ResultURL),
		formatTime(j.UpdatedAt), j.ID)
	return err
}

func (r *SQLiteRepository) SetResult(ctx context.Context, id, path string, size int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET result_path = ?, result_bytes = ?, updated_at = ? WHERE id = ?
	`, path, size, formatTime(time.Now().UTC()), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var remoteID, errMsg, resultURL, resultPath sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &remoteID, &j.VideoURI, &j.OverlayCount, &j.AssetCount, &j.Status, &j.Progress, &j.Polls,
		&errMsg, &resultURL, &resultPath, &j.ResultBytes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.RemoteID = remoteID.String
	j.Error = errMsg.String
	j.ResultURL = resultURL.String
	j.ResultPath = resultPath.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

// parseTime accepts our own timestamps and SQLite's datetime('now').
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}
