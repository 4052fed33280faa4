package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/backend/backendtest"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) string {
	return backend.FormatTime(now.Add(-d))
}

func TestIsOnlineAt(t *testing.T) {
	tests := []struct {
		name     string
		lastSeen string
		want     bool
	}{
		{"just now", ago(0), true},
		{"inside window", ago(74 * time.Second), true},
		{"window edge", ago(OnlineWindow), true},
		{"outside window", ago(76 * time.Second), false},
		{"hours ago", ago(3 * time.Hour), false},
		{"future skew", backend.FormatTime(now.Add(5 * time.Second)), true},
		{"empty", "", false},
		{"malformed", "yesterday-ish", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOnlineAt(tt.lastSeen, now); got != tt.want {
				t.Errorf("IsOnlineAt(%q) = %v, want %v", tt.lastSeen, got, tt.want)
			}
		})
	}
}

func TestClassifierCustomWindow(t *testing.T) {
	c := Classifier{Window: 10 * time.Second}
	if !c.IsOnlineAt(ago(9*time.Second), now) {
		t.Error("9s ago should be online with a 10s window")
	}
	if c.IsOnlineAt(ago(11*time.Second), now) {
		t.Error("11s ago should be offline with a 10s window")
	}
}

func TestLastSeenTextAt(t *testing.T) {
	tests := []struct {
		name     string
		lastSeen string
		loc      Locale
		want     string
	}{
		{"online en", ago(30 * time.Second), English, "active now"},
		{"online es", ago(30 * time.Second), Spanish, "activo ahora"},
		{"minimum one minute", ago(80 * time.Second), English, "active 1 minute ago"},
		{"minutes", ago(5 * time.Minute), English, "active 5 minutes ago"},
		{"one hour", ago(time.Hour), English, "active 1 hour ago"},
		{"hours es", ago(3*time.Hour + 20*time.Minute), Spanish, "activo hace 3 horas"},
		{"one day es", ago(25 * time.Hour), Spanish, "activo hace 1 día"},
		{"days", ago(72 * time.Hour), English, "active 3 days ago"},
		{"unknown locale", ago(2 * time.Minute), Locale("fr"), "active 2 minutes ago"},
		{"empty", "", English, ""},
		{"malformed", "not a time", Spanish, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastSeenTextAt(tt.lastSeen, tt.loc, now); got != tt.want {
				t.Errorf("LastSeenTextAt(%q, %q) = %q, want %q", tt.lastSeen, tt.loc, got, tt.want)
			}
		})
	}
}

func newTestHeartbeat(docs backend.Documents) *Heartbeat {
	h := NewHeartbeat(docs, "profiles", "u1", "Ana", time.Hour, nil)
	h.now = func() time.Time { return now }
	return h
}

func TestHeartbeatCreatesThenUpdates(t *testing.T) {
	mem := backendtest.NewMemory()
	h := newTestHeartbeat(mem)
	ctx := context.Background()

	h.Beat(ctx)
	d, ok := mem.Doc("profiles", "u1")
	if !ok {
		t.Fatal("first beat should create the profile")
	}
	if d.Data["name"] != "Ana" || d.Data["userId"] != "u1" {
		t.Errorf("created data = %v", d.Data)
	}
	if d.Data["lastSeenAt"] != backend.FormatTime(now) {
		t.Errorf("lastSeenAt = %v", d.Data["lastSeenAt"])
	}

	later := now.Add(time.Minute)
	h.now = func() time.Time { return later }
	h.Beat(ctx)
	d, _ = mem.Doc("profiles", "u1")
	if d.Data["lastSeenAt"] != backend.FormatTime(later) {
		t.Errorf("lastSeenAt after update = %v", d.Data["lastSeenAt"])
	}
	if d.Data["name"] != "Ana" {
		t.Errorf("update should keep name, got %v", d.Data["name"])
	}
	if n := mem.Calls(backendtest.OpCreate); n != 1 {
		t.Errorf("creates = %d, want 1", n)
	}
}

func TestHeartbeatKeepsExistingProfile(t *testing.T) {
	mem := backendtest.NewMemory()
	mem.Put("profiles", "u1", map[string]any{"name": "Ana Maria", "avatarFileId": "f1"})

	newTestHeartbeat(mem).Beat(context.Background())

	d, _ := mem.Doc("profiles", "u1")
	if d.Data["name"] != "Ana Maria" || d.Data["avatarFileId"] != "f1" {
		t.Errorf("existing fields overwritten: %v", d.Data)
	}
	if mem.Calls(backendtest.OpCreate) != 0 {
		t.Error("existing profile should not be recreated")
	}
}

func TestHeartbeatFailureIsSwallowed(t *testing.T) {
	mem := backendtest.NewMemory()
	mem.Fail(backendtest.OpUpdate, errors.New("offline"))

	newTestHeartbeat(mem).Beat(context.Background())
	if mem.Count("profiles") != 0 {
		t.Error("a failed update should not fall through to create")
	}
}

func TestHeartbeatStartBeatsImmediately(t *testing.T) {
	mem := backendtest.NewMemory()
	h := newTestHeartbeat(mem)

	h.Start(context.Background())
	deadline := time.After(2 * time.Second)
	for mem.Count("profiles") == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first beat")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Restart and stop repeatedly without leaking the loop.
	h.Start(context.Background())
	h.Stop()
	h.Stop()
	h.Start(context.Background())
	h.Stop()
}
