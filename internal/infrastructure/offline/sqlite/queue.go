package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const (
	statusPending = "pending"
	statusSynced  = "synced"
	statusFailed  = "failed"

	defaultMaxAttempts = 5
)

// Queue persists uploads parked during a storage outage in a local SQLite
// file. A sibling lock file grants sync rights to a single process.
type Queue struct {
	db          *sql.DB
	lock        *flock.Flock
	maxAttempts int
	now         func() time.Time
}

func Open(path string) (*Queue, error) {
	if path == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open offline queue", errors.New("path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create offline queue dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	q := &Queue{
		db:          db,
		lock:        flock.New(path + ".lock"),
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	if err := q.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

func (q *Queue) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS offline_uploads (
	id TEXT PRIMARY KEY,
	asset_id TEXT NOT NULL DEFAULT '',
	organization_id TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	payload BLOB NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offline_uploads_status ON offline_uploads(status, created_at);
`
	if _, err := q.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("apply offline queue schema: %w", err)
	}
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, upload domain.OfflineUpload) error {
	if upload.ID == "" || upload.StoragePath == "" {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue offline upload", errors.New("id and storage path are required"))
	}
	createdAt := upload.CreatedAt
	if createdAt.IsZero() {
		createdAt = q.now()
	}
	ts := q.now().UTC().Format(time.RFC3339Nano)

	_, err := q.db.ExecContext(ctx, `
INSERT INTO offline_uploads (
	id, asset_id, organization_id, storage_path, file_name, mime_type, payload, status, attempts, last_error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		upload.ID, upload.AssetID, upload.OrganizationID, upload.StoragePath, upload.FileName, upload.MimeType,
		upload.Payload, statusPending, upload.Attempts, upload.LastError,
		createdAt.UTC().Format(time.RFC3339Nano), ts,
	)
	if err != nil {
		return fmt.Errorf("insert offline upload: %w", err)
	}
	return nil
}

// Pending returns the oldest uploads still waiting for sync.
func (q *Queue) Pending(ctx context.Context, limit int) ([]domain.OfflineUpload, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT id, asset_id, organization_id, storage_path, file_name, mime_type, payload, attempts, last_error, created_at
FROM offline_uploads
WHERE status = ?
ORDER BY created_at ASC
LIMIT ?`, statusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending uploads: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OfflineUpload, 0)
	for rows.Next() {
		var item domain.OfflineUpload
		var createdAt string
		if err := rows.Scan(
			&item.ID, &item.AssetID, &item.OrganizationID, &item.StoragePath, &item.FileName, &item.MimeType,
			&item.Payload, &item.Attempts, &item.LastError, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending upload: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			item.CreatedAt = parsed
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending uploads: %w", err)
	}
	return out, nil
}

// MarkSynced drops the stored payload; the row stays as an audit trail.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	return q.update(ctx, "mark synced", id, `
UPDATE offline_uploads
SET status = ?, payload = X'', updated_at = ?
WHERE id = ?`, statusSynced, q.now().UTC().Format(time.RFC3339Nano), id)
}

// MarkFailed counts an attempt. Uploads that exhaust their attempts leave
// the pending set.
func (q *Queue) MarkFailed(ctx context.Context, id string, reason string) error {
	return q.update(ctx, "mark failed", id, `
UPDATE offline_uploads
SET attempts = attempts + 1,
	last_error = ?,
	status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END,
	updated_at = ?
WHERE id = ?`, reason, q.maxAttempts, statusFailed, q.now().UTC().Format(time.RFC3339Nano), id)
}

func (q *Queue) update(ctx context.Context, op, id, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrAssetNotFound, op, fmt.Errorf("offline upload %s", id))
	}
	return nil
}

// Lock returns domain.ErrTemporary while another process syncs.
func (q *Queue) Lock(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ok, err := q.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire offline queue lock: %w", err)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrTemporary, "acquire offline queue lock", errors.New("held by another process"))
	}
	return q.lock.Unlock, nil
}

// Stats counts queue rows per status.
func (q *Queue) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM offline_uploads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query offline queue stats: %w", err)
	}
	defer rows.Close()

	out := map[string]int{statusPending: 0, statusSynced: 0, statusFailed: 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan offline queue stats: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}
