// Package backendtest provides in-memory backend collaborators with fault
// injection for tests.
package backendtest

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/rentchat/internal/backend"
)

// Operation names accepted by Fail and Calls.
const (
	OpList      = "list"
	OpGet       = "get"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpSubscribe = "subscribe"
	OpURL       = "url"
)

// Memory implements backend.Documents, backend.Realtime and backend.Files.
// Every write publishes a realtime event to matching subscriptions. Document
// timestamps advance by one millisecond per write so ordering is stable.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]backend.Document
	clock time.Time
	fail  map[string]error
	once  map[string]error
	calls map[string]int
	subs  map[*memSub]struct{}
	hold  map[string]chan struct{}
}

// NewMemory creates an empty backend.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]map[string]backend.Document),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		fail:  make(map[string]error),
		once:  make(map[string]error),
		calls: make(map[string]int),
		subs:  make(map[*memSub]struct{}),
		hold:  make(map[string]chan struct{}),
	}
}

// Fail makes every call of op return err until cleared with a nil err.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// FailOnce makes the next call of op return err.
func (m *Memory) FailOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.once[op] = err
}

// Hold blocks calls of op until the returned release func is called.
func (m *Memory) Hold(op string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.hold[op] = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.hold[op] == ch {
				delete(m.hold, op)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	hold := m.hold[op]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.once[op]; ok {
		delete(m.once, op)
		return err
	}
	return m.fail[op]
}

func (m *Memory) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

// Put stores a document directly without publishing an event.
func (m *Memory) Put(collection, id string, data map[string]any) backend.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.tick()
	d := backend.Document{ID: id, Collection: collection, CreatedAt: now, UpdatedAt: now, Data: normalize(data)}
	m.coll(collection)[id] = d
	return d
}

// Doc returns a stored document.
func (m *Memory) Doc(collection, id string) (backend.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	return copyDoc(d), ok
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func (m *Memory) coll(c string) map[string]backend.Document {
	docs, ok := m.docs[c]
	if !ok {
		docs = make(map[string]backend.Document)
		m.docs[c] = docs
	}
	return docs
}

func (m *Memory) List(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	if err := m.enter(ctx, OpList); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []backend.Document
	for _, d := range m.docs[collection] {
		if matches(d, q) {
			out = append(out, copyDoc(d))
		}
	}
	slices.SortFunc(out, func(a, b backend.Document) int {
		c := compareField(a, b, q.OrderBy)
		if q.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (backend.Document, error) {
	if err := m.enter(ctx, OpGet); err != nil {
		return backend.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return backend.Document{}, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	return copyDoc(d), nil
}

func (m *Memory) Create(ctx context.Context, collection, id string, data map[string]any) (backend.Document, error) {
	if err := m.enter(ctx, OpCreate); err != nil {
		return backend.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := m.docs[collection][id]; ok {
		return backend.Document{}, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrConflict)
	}
	now := m.tick()
	d := backend.Document{ID: id, Collection: collection, CreatedAt: now, UpdatedAt: now, Data: normalize(data)}
	m.coll(collection)[id] = d
	m.publishLocked(d, backend.ActionCreate)
	return copyDoc(d), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, patch map[string]any, incr map[string]int64) (backend.Document, error) {
	if err := m.enter(ctx, OpUpdate); err != nil {
		return backend.Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return backend.Document{}, fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	data := maps.Clone(d.Data)
	for k, v := range normalize(patch) {
		if v == nil {
			delete(data, k)
			continue
		}
		data[k] = v
	}
	for k, delta := range incr {
		cur, _ := data[k].(float64)
		data[k] = max(0, cur+float64(delta))
	}
	d.Data = data
	d.UpdatedAt = m.tick()
	m.coll(collection)[id] = d
	m.publishLocked(d, backend.ActionUpdate)
	return copyDoc(d), nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := m.enter(ctx, OpDelete); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, backend.ErrNotFound)
	}
	delete(m.docs[collection], id)
	m.publishLocked(d, backend.ActionDelete)
	return nil
}

// URL implements backend.Files.
func (m *Memory) URL(ctx context.Context, bucket, fileID string) (string, error) {
	if err := m.enter(ctx, OpURL); err != nil {
		return "", err
	}
	return "mem://" + bucket + "/" + fileID, nil
}

func normalize(data map[string]any) map[string]any {
	out := map[string]any{}
	if data == nil {
		return out
	}
	raw, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("backendtest: unencodable data: %v", err))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("backendtest: %v", err))
	}
	return out
}

func copyDoc(d backend.Document) backend.Document {
	d.Data = maps.Clone(d.Data)
	return d
}

func fieldValue(d backend.Document, field string) any {
	switch field {
	case backend.AttrID:
		return d.ID
	case backend.AttrCollection:
		return d.Collection
	case backend.AttrCreatedAt, "":
		return backend.FormatTime(d.CreatedAt)
	case backend.AttrUpdatedAt:
		return backend.FormatTime(d.UpdatedAt)
	}
	return d.Data[field]
}

func equalValue(a, b any) bool {
	switch v := b.(type) {
	case int:
		b = float64(v)
	case int64:
		b = float64(v)
	}
	return a == b
}

func matches(d backend.Document, q backend.Query) bool {
	for _, f := range q.Equal {
		if !equalValue(fieldValue(d, f.Field), f.Value) {
			return false
		}
	}
	if len(q.Any) == 0 {
		return true
	}
	for _, f := range q.Any {
		if equalValue(fieldValue(d, f.Field), f.Value) {
			return true
		}
	}
	return false
}

func compareField(a, b backend.Document, field string) int {
	av, bv := fieldValue(a, field), fieldValue(b, field)
	switch x := av.(type) {
	case string:
		y, _ := bv.(string)
		return strings.Compare(x, y)
	case float64:
		y, _ := bv.(float64)
		return cmp.Compare(x, y)
	case nil:
		if bv == nil {
			return 0
		}
		return -1
	}
	return 0
}
