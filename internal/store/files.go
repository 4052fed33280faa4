package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertFile records object metadata for a stored file.
func (db *DB) UpsertFile(ctx context.Context, f *File) error {
	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO files (bucket, id, object_key, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, id) DO UPDATE SET
			object_key = excluded.object_key,
			content_type = excluded.content_type,
			size = excluded.size`,
		f.Bucket, f.ID, f.ObjectKey, f.ContentType, f.Size, f.CreatedAt)
	return err
}

// GetFile returns file metadata, or nil when the file is unknown.
func (db *DB) GetFile(ctx context.Context, bucket, id string) (*File, error) {
	var f File
	err := db.QueryRowContext(ctx, `
		SELECT bucket, id, object_key, content_type, size, created_at
		FROM files WHERE bucket = ? AND id = ?`, bucket, id).
		Scan(&f.Bucket, &f.ID, &f.ObjectKey, &f.ContentType, &f.Size, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
