package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (documents + files)", result.Version)
	}
}

func TestInsertAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d, err := db.InsertDocument(ctx, "conversations", "c1", map[string]any{"status": "open", "unreadCountClient": 0}, now)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != "c1" || d.Collection != "conversations" {
		t.Errorf("got %s/%s", d.Collection, d.ID)
	}
	if !d.CreatedAt.Equal(now) || !d.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", d.CreatedAt, d.UpdatedAt, now)
	}
	if d.Data["status"] != "open" {
		t.Errorf("status = %v", d.Data["status"])
	}

	got, err := db.GetDocument(ctx, "conversations", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Data["status"] != "open" {
		t.Fatalf("GetDocument = %+v", got)
	}

	missing, err := db.GetDocument(ctx, "conversations", "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing document")
	}
}

func TestInsertConflict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.InsertDocument(ctx, "c", "x", map[string]any{"v": 1}, time.Now()); err != nil {
		t.Fatal(err)
	}
	_, err := db.InsertDocument(ctx, "c", "x", map[string]any{"v": 2}, time.Now())
	if !errors.Is(err, backend.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Same id in another collection is fine.
	if _, err := db.InsertDocument(ctx, "other", "x", nil, time.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestFindFiltersAndOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	docs := []struct {
		id   string
		data map[string]any
	}{
		{"a", map[string]any{"clientUserId": "u1", "ownerUserId": "o1", "score": 2}},
		{"b", map[string]any{"clientUserId": "u2", "ownerUserId": "u1", "score": 1}},
		{"c", map[string]any{"clientUserId": "u3", "ownerUserId": "o2", "score": 3}},
		{"d", map[string]any{"clientUserId": "u1", "ownerUserId": "o3", "score": 2, "archived": true}},
	}
	for i, d := range docs {
		if _, err := db.InsertDocument(ctx, "conversations", d.id, d.data, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.FindDocuments(ctx, "conversations", backend.Query{
		Any: []backend.Filter{backend.Eq("clientUserId", "u1"), backend.Eq("ownerUserId", "u1")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ids := docIDs(got); !equalIDs(ids, []string{"a", "b", "d"}) {
		t.Errorf("Any ids = %v, want [a b d]", ids)
	}

	got, err = db.FindDocuments(ctx, "conversations", backend.Query{
		Equal: []backend.Filter{backend.Eq("archived", true)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ids := docIDs(got); !equalIDs(ids, []string{"d"}) {
		t.Errorf("bool filter ids = %v, want [d]", ids)
	}

	// Ties on score fall back to id ascending.
	got, err = db.FindDocuments(ctx, "conversations", backend.Query{OrderBy: "score", Desc: true})
	if err != nil {
		t.Fatal(err)
	}
	if ids := docIDs(got); !equalIDs(ids, []string{"c", "a", "d", "b"}) {
		t.Errorf("ordered ids = %v, want [c a d b]", ids)
	}

	got, err = db.FindDocuments(ctx, "conversations", backend.Query{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if ids := docIDs(got); !equalIDs(ids, []string{"b", "c"}) {
		t.Errorf("paged ids = %v, want [b c]", ids)
	}
}

func TestFindRejectsBadField(t *testing.T) {
	db := testDB(t)
	_, err := db.FindDocuments(context.Background(), "c", backend.Query{
		Equal: []backend.Filter{backend.Eq("x') OR 1=1 --", "y")},
	})
	if !errors.Is(err, backend.ErrInvalidQuery) {
		t.Fatalf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestPatchMergesAndIncrements(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := db.InsertDocument(ctx, "conversations", "c1", map[string]any{
		"status": "open", "unreadCountOwner": 1, "preview": "old",
	}, created); err != nil {
		t.Fatal(err)
	}

	later := created.Add(time.Minute)
	d, err := db.PatchDocument(ctx, "conversations", "c1",
		map[string]any{"preview": "new", "lastMessageAt": "2026-01-01T00:01:00.000000000Z"},
		map[string]int64{"unreadCountOwner": 2, "unreadCountClient": 1},
		later)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil {
		t.Fatal("PatchDocument returned nil")
	}
	if d.Data["preview"] != "new" || d.Data["status"] != "open" {
		t.Errorf("data = %v", d.Data)
	}
	if d.Data["unreadCountOwner"] != float64(3) {
		t.Errorf("unreadCountOwner = %v, want 3", d.Data["unreadCountOwner"])
	}
	if d.Data["unreadCountClient"] != float64(1) {
		t.Errorf("unreadCountClient = %v, want 1", d.Data["unreadCountClient"])
	}
	if !d.UpdatedAt.Equal(later) || !d.CreatedAt.Equal(created) {
		t.Errorf("timestamps = %v/%v", d.CreatedAt, d.UpdatedAt)
	}

	// Decrements clamp at zero.
	d, err = db.PatchDocument(ctx, "conversations", "c1", nil, map[string]int64{"unreadCountClient": -5}, later)
	if err != nil {
		t.Fatal(err)
	}
	if d.Data["unreadCountClient"] != float64(0) {
		t.Errorf("unreadCountClient = %v, want 0", d.Data["unreadCountClient"])
	}

	// Null removes the key.
	d, err = db.PatchDocument(ctx, "conversations", "c1", map[string]any{"preview": nil}, nil, later)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Data["preview"]; ok {
		t.Error("preview should have been removed")
	}
}

func TestPatchMissingReturnsNil(t *testing.T) {
	db := testDB(t)
	d, err := db.PatchDocument(context.Background(), "c", "ghost", map[string]any{"a": 1}, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("expected nil, got %+v", d)
	}
}

func TestPatchConcurrentIncrements(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, err := db.InsertDocument(ctx, "c", "x", map[string]any{"n": 0}, time.Now()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			if _, err := db.PatchDocument(ctx, "c", "x", nil, map[string]int64{"n": 1}, time.Now()); err != nil {
				t.Error(err)
			}
		})
	}
	wg.Wait()

	d, err := db.GetDocument(ctx, "c", "x")
	if err != nil {
		t.Fatal(err)
	}
	if d.Data["n"] != float64(20) {
		t.Errorf("n = %v, want 20", d.Data["n"])
	}
}

func TestRemoveAndCount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := db.InsertDocument(ctx, "messages", id, nil, time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.DocumentCount(ctx, "messages")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	ok, err := db.RemoveDocument(ctx, "messages", "a")
	if err != nil || !ok {
		t.Fatalf("RemoveDocument = %v, %v", ok, err)
	}
	ok, err = db.RemoveDocument(ctx, "messages", "a")
	if err != nil || ok {
		t.Fatalf("second RemoveDocument = %v, %v", ok, err)
	}
	n, _ = db.DocumentCount(ctx, "messages")
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestFiles(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	f := &File{Bucket: "avatars", ID: "f1", ObjectKey: "avatars/f1.png", ContentType: "image/png", Size: 42}
	if err := db.UpsertFile(ctx, f); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetFile(ctx, "avatars", "f1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ObjectKey != "avatars/f1.png" || got.Size != 42 {
		t.Errorf("GetFile = %+v", got)
	}

	f.ObjectKey = "avatars/f1-v2.png"
	if err := db.UpsertFile(ctx, f); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetFile(ctx, "avatars", "f1")
	if got.ObjectKey != "avatars/f1-v2.png" {
		t.Errorf("ObjectKey = %q after upsert", got.ObjectKey)
	}

	missing, err := db.GetFile(ctx, "avatars", "nope")
	if err != nil || missing != nil {
		t.Errorf("GetFile(missing) = %+v, %v", missing, err)
	}
}

func docIDs(docs []backend.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
