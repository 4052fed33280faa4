package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/backend/backendtest"
	"github.com/matheus3301/rentchat/internal/realtime"
)

func newTestCache(mem *backendtest.Memory, rt backend.Realtime, opts Options) *Cache {
	opts.Collection = "profiles"
	opts.AvatarBucket = "avatars"
	if opts.SelfID == "" {
		opts.SelfID = "me"
	}
	return New(mem, rt, mem, opts)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func seed(mem *backendtest.Memory) {
	mem.Put("profiles", "a", map[string]any{"userId": "a", "name": "Ana", "lastSeenAt": "2026-01-01T00:00:00Z"})
	mem.Put("profiles", "b", map[string]any{"userId": "b", "name": "Bruno", "avatarFileId": "f1"})
	mem.Put("profiles", "c", map[string]any{"userId": "c", "name": "Carla"})
}

func TestWatchNormalizesAndFetchesMissing(t *testing.T) {
	mem := backendtest.NewMemory()
	seed(mem)
	c := newTestCache(mem, nil, Options{})
	ctx := context.Background()

	c.Watch(ctx, []string{"a", "", "me", "a", "b"})
	if got := c.Watched(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Watched() = %v, want [a b]", got)
	}
	if n := mem.Calls(backendtest.OpGet); n != 2 {
		t.Errorf("gets = %d, want 2", n)
	}
	p, ok := c.Get("b")
	if !ok || p.Name != "Bruno" {
		t.Fatalf("Get(b) = %+v, %v", p, ok)
	}
	if p.AvatarURL != "mem://avatars/f1" {
		t.Errorf("AvatarURL = %q", p.AvatarURL)
	}

	// Widening fetches only the new id.
	c.Watch(ctx, []string{"a", "b", "c"})
	if n := mem.Calls(backendtest.OpGet); n != 3 {
		t.Errorf("gets after widening = %d, want 3", n)
	}
}

func TestWatchPrunesAndRefetchesOnReAdd(t *testing.T) {
	mem := backendtest.NewMemory()
	seed(mem)
	c := newTestCache(mem, nil, Options{})
	ctx := context.Background()

	c.Watch(ctx, []string{"a", "b"})
	c.Watch(ctx, []string{"a"})
	if _, ok := c.Get("b"); ok {
		t.Error("b should be pruned")
	}
	if len(c.Snapshot()) != 1 {
		t.Errorf("snapshot = %v", c.Snapshot())
	}

	before := mem.Calls(backendtest.OpGet)
	c.Watch(ctx, []string{"a", "b"})
	if mem.Calls(backendtest.OpGet) != before+1 {
		t.Error("re-added id should be fetched again")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should be cached again")
	}
}

func TestFetchToleratesPerIDFailures(t *testing.T) {
	mem := backendtest.NewMemory()
	seed(mem)
	c := newTestCache(mem, nil, Options{})
	ctx := context.Background()

	c.Watch(ctx, []string{"a", "ghost"})
	if _, ok := c.Get("a"); !ok {
		t.Error("a should be cached despite ghost missing")
	}
	if _, ok := c.Get("ghost"); ok {
		t.Error("ghost should be absent")
	}

	// A transient failure keeps the previous entry.
	mem.Fail(backendtest.OpGet, errors.New("timeout"))
	c.Refresh(ctx)
	if p, ok := c.Get("a"); !ok || p.Name != "Ana" {
		t.Errorf("Get(a) after failed refresh = %+v, %v", p, ok)
	}
}

func TestStaleBatchIsDiscarded(t *testing.T) {
	mem := backendtest.NewMemory()
	c := newTestCache(mem, nil, Options{})
	c.Watch(context.Background(), []string{"a"})

	old := c.nextToken()
	latest := c.nextToken()

	if c.apply(old, []result{{id: "a", data: map[string]any{"name": "Stale"}}}) {
		t.Error("stale batch applied")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("stale batch should not populate the cache")
	}
	if !c.apply(latest, []result{{id: "a", data: map[string]any{"name": "Fresh"}}}) {
		t.Error("latest batch rejected")
	}
	if p, _ := c.Get("a"); p.Name != "Fresh" {
		t.Errorf("name = %q, want Fresh", p.Name)
	}
}

func TestRealtimeMergeDeleteAndCreate(t *testing.T) {
	mem := backendtest.NewMemory()
	seed(mem)
	c := newTestCache(mem, mem, Options{PollInterval: time.Hour, TickInterval: time.Hour})
	ctx := context.Background()

	c.Watch(ctx, []string{"a", "b", "d"})
	c.Start(ctx)
	defer c.Stop()
	channel := backend.CollectionChannel("profiles")
	waitFor(t, "subscription", func() bool { return mem.Subscribers(channel) == 1 })

	if _, err := mem.Update(ctx, "profiles", "a", map[string]any{"lastSeenAt": "2026-02-01T00:00:00Z"}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "merge", func() bool {
		p, _ := c.Get("a")
		return p.LastSeenAt == "2026-02-01T00:00:00Z"
	})
	if p, _ := c.Get("a"); p.Name != "Ana" {
		t.Errorf("merge lost name: %+v", p)
	}

	// Unwatched ids are ignored.
	if _, err := mem.Update(ctx, "profiles", "c", map[string]any{"name": "Carla 2"}, nil); err != nil {
		t.Fatal(err)
	}

	if err := mem.Delete(ctx, "profiles", "b"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delete", func() bool { _, ok := c.Get("b"); return !ok })

	if _, err := mem.Create(ctx, "profiles", "d", map[string]any{"userId": "d", "name": "Davi"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "create", func() bool { p, ok := c.Get("d"); return ok && p.Name == "Davi" })

	if _, ok := c.Get("c"); ok {
		t.Error("unwatched c should not be cached")
	}
}

func TestRealtimeWinsOverInFlightBatch(t *testing.T) {
	mem := backendtest.NewMemory()
	c := newTestCache(mem, nil, Options{})
	c.Watch(context.Background(), []string{"a"})

	tok := c.nextToken()
	c.handleEvent(context.Background(), realtime.Event{
		Kind:       realtime.Update,
		Collection: "profiles",
		Document:   backend.Document{ID: "a", Data: map[string]any{"name": "Live"}},
	})
	c.apply(tok, []result{{id: "a", data: map[string]any{"name": "Fetched"}}})
	if p, _ := c.Get("a"); p.Name != "Live" {
		t.Errorf("name = %q, want Live", p.Name)
	}

	// A batch issued after the event applies normally.
	c.apply(c.nextToken(), []result{{id: "a", data: map[string]any{"name": "Polled"}}})
	if p, _ := c.Get("a"); p.Name != "Polled" {
		t.Errorf("name = %q, want Polled", p.Name)
	}
}

func TestTickAdvancesAndSignals(t *testing.T) {
	mem := backendtest.NewMemory()
	c := newTestCache(mem, nil, Options{PollInterval: time.Hour, TickInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, "tick", func() bool { return c.Tick() >= 2 })
	select {
	case <-c.Changed():
	case <-time.After(time.Second):
		t.Fatal("no change signal after tick")
	}
}

func TestObserveActivity(t *testing.T) {
	mem := backendtest.NewMemory()
	seed(mem)
	c := newTestCache(mem, nil, Options{})
	c.Watch(context.Background(), []string{"a"})
	gets := mem.Calls(backendtest.OpGet)

	newer := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.ObserveActivity("a", newer)
	if p, _ := c.Get("a"); p.LastSeenAt != backend.FormatTime(newer) {
		t.Errorf("lastSeenAt = %q", p.LastSeenAt)
	}

	c.ObserveActivity("a", newer.Add(-time.Hour))
	if p, _ := c.Get("a"); p.LastSeenAt != backend.FormatTime(newer) {
		t.Errorf("older activity applied: %q", p.LastSeenAt)
	}

	c.ObserveActivity("zed", newer)
	if _, ok := c.Get("zed"); ok {
		t.Error("activity for an unknown user should not create an entry")
	}
	if mem.Calls(backendtest.OpGet) != gets {
		t.Error("activity should not trigger a fetch")
	}
}

func TestPollingOnlyWithoutRealtime(t *testing.T) {
	mem := backendtest.NewMemory()
	seed(mem)
	c := newTestCache(mem, nil, Options{PollInterval: 10 * time.Millisecond, TickInterval: time.Hour})
	c.Watch(context.Background(), []string{"a"})
	c.Start(context.Background())
	defer c.Stop()

	if _, err := mem.Update(context.Background(), "profiles", "a", map[string]any{"name": "Ana Paula"}, nil); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "poll", func() bool { p, _ := c.Get("a"); return p.Name == "Ana Paula" })
}

func TestStartStopRepeatsWithoutLeaks(t *testing.T) {
	mem := backendtest.NewMemory()
	c := newTestCache(mem, mem, Options{PollInterval: time.Hour, TickInterval: time.Hour})
	channel := backend.CollectionChannel("profiles")
	ctx := context.Background()

	for range 3 {
		c.Start(ctx)
		waitFor(t, "subscription", func() bool { return mem.Subscribers(channel) == 1 })
		c.Stop()
		if n := mem.Subscribers(channel); n != 0 {
			t.Fatalf("subscribers after Stop = %d", n)
		}
	}
	c.Stop()
}
