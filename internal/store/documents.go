package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
)

// InsertDocument stores a new document. Returns backend.ErrConflict when
// (collection, id) is already taken.
func (db *DB) InsertDocument(ctx context.Context, collection, id string, data map[string]any, now time.Time) (*backend.Document, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	ts := now.UnixNano()
	res, err := db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO NOTHING`,
		collection, id, string(raw), ts, ts)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrConflict)
	}
	return db.GetDocument(ctx, collection, id)
}

// GetDocument returns a single document, or nil when it does not exist.
func (db *DB) GetDocument(ctx context.Context, collection, id string) (*backend.Document, error) {
	return getDocument(ctx, db.DB, collection, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryRower, collection, id string) (*backend.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, id, data, created_at, updated_at
		FROM documents WHERE collection = ? AND id = ?`, collection, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// FindDocuments returns the documents of a collection matching q. Results
// are ordered by q.OrderBy (creation time by default) with the id as the
// final tie-break so pages are stable.
func (db *DB) FindDocuments(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		sb   strings.Builder
		args = []any{collection}
	)
	sb.WriteString(`SELECT collection, id, data, created_at, updated_at FROM documents WHERE collection = ?`)
	for _, f := range q.Equal {
		sb.WriteString(" AND " + fieldExpr(f.Field) + " = ?")
		args = append(args, filterArg(f))
	}
	if len(q.Any) > 0 {
		parts := make([]string, 0, len(q.Any))
		for _, f := range q.Any {
			parts = append(parts, fieldExpr(f.Field)+" = ?")
			args = append(args, filterArg(f))
		}
		sb.WriteString(" AND (" + strings.Join(parts, " OR ") + ")")
	}

	order := "created_at"
	if q.OrderBy != "" {
		order = fieldExpr(q.OrderBy)
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s, id ASC", order, dir)

	limit := q.Limit
	if limit == 0 {
		limit = -1
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []backend.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// PatchDocument shallow-merges patch into the document data and adds each
// incr delta to the named numeric field in a single statement, so
// concurrent increments never lose updates. Counters are clamped at zero.
// A nil patch value removes the key. Returns nil when the document does not
// exist.
func (db *DB) PatchDocument(ctx context.Context, collection, id string, patch map[string]any, incr map[string]int64, now time.Time) (*backend.Document, error) {
	if patch == nil {
		patch = map[string]any{}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}

	expr := "json_patch(data, ?)"
	args := []any{string(raw)}
	keys := make([]string, 0, len(incr))
	for k := range incr {
		if !backend.ValidField(k) || strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("%w: counter %q", backend.ErrInvalidQuery, k)
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		path := "'$." + k + "'"
		expr = fmt.Sprintf("json_set(%s, %s, MAX(0, COALESCE(json_extract(data, %s), 0) + ?))", expr, path, path)
		args = append(args, incr[k])
	}
	args = append(args, now.UnixNano(), collection, id)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE documents SET data = "+expr+", updated_at = ? WHERE collection = ? AND id = ?",
		args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	d, err := getDocument(ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}
	return d, tx.Commit()
}

// RemoveDocument deletes a document and reports whether it existed.
func (db *DB) RemoveDocument(ctx context.Context, collection, id string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DocumentCount returns the number of documents in a collection.
func (db *DB) DocumentCount(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*backend.Document, error) {
	var (
		d                backend.Document
		raw              string
		created, updated int64
	)
	if err := s.Scan(&d.Collection, &d.ID, &raw, &created, &updated); err != nil {
		return nil, err
	}
	d.Data = map[string]any{}
	if err := json.Unmarshal([]byte(raw), &d.Data); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

// fieldExpr maps an attribute name to its SQL expression. Names are
// validated by backend.Query.Validate before reaching here.
func fieldExpr(field string) string {
	switch field {
	case backend.AttrID:
		return "id"
	case backend.AttrCollection:
		return "collection"
	case backend.AttrCreatedAt:
		return "created_at"
	case backend.AttrUpdatedAt:
		return "updated_at"
	}
	return "json_extract(data, '$." + field + "')"
}

func filterArg(f backend.Filter) any {
	switch f.Field {
	case backend.AttrCreatedAt, backend.AttrUpdatedAt:
		if s, ok := f.Value.(string); ok {
			return backend.ParseTime(s).UnixNano()
		}
	}
	if b, ok := f.Value.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return f.Value
}
