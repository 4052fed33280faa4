package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/rentchat/internal/config"
	"github.com/matheus3301/rentchat/internal/lock"
	"github.com/matheus3301/rentchat/internal/remote"
	"github.com/matheus3301/rentchat/internal/session"
	"go.uber.org/fx"
)

func testHome(t *testing.T) string {
	t.Helper()
	// Use a short path to avoid the Unix socket path limit.
	dir, err := os.MkdirTemp("/tmp", "rentchat-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(session.HomeEnv, dir)
	return dir
}

func newApp(sessionName string, cfg *config.Config, srv **Server) *fx.App {
	opts := []fx.Option{
		Module(Params{SessionName: sessionName, Config: cfg}),
		fx.NopLogger,
	}
	if srv != nil {
		opts = append(opts, fx.Populate(srv))
	}
	return fx.New(opts...)
}

func TestDaemonLifecycle(t *testing.T) {
	testHome(t)
	sessionName := "test"

	var srv *Server
	app := newApp(sessionName, config.Default(), &srv)
	if err := app.Err(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if srv.SocketPath() != session.SocketPath(sessionName) {
		t.Errorf("socket = %q, want %q", srv.SocketPath(), session.SocketPath(sessionName))
	}
	info, err := os.Stat(srv.SocketPath())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket perm = %o, want 600", perm)
	}

	c, err := remote.New(srv.SocketPath(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Create(ctx, "conversations", "c1", map[string]any{"clientUserId": "u1"}); err != nil {
		t.Fatal(err)
	}
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st["session"] != sessionName {
		t.Errorf("status session = %v", st["session"])
	}
	counts, _ := st["documents"].(map[string]any)
	if counts["conversations"] != float64(1) {
		t.Errorf("conversations count = %v, want 1", counts["conversations"])
	}

	h, held, err := lock.Inspect(session.Dir(sessionName))
	if err != nil || !held || h.PID != os.Getpid() {
		t.Errorf("Inspect() = %+v, %v, %v", h, held, err)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(srv.SocketPath()); !os.IsNotExist(err) {
		t.Error("socket should be removed after stop")
	}
	if _, held, _ := lock.Inspect(session.Dir(sessionName)); held {
		t.Error("lock should be released after stop")
	}
	if _, err := os.Stat(session.LogPath(sessionName, Binary)); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	testHome(t)

	var srv *Server
	first := newApp("dup", config.Default(), &srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Stop(ctx) }()

	second := newApp("dup", config.Default(), nil)
	err := second.Err()
	if err == nil {
		t.Fatal("second daemon should fail to acquire the session lock")
	}
	if !strings.Contains(err.Error(), "session lock held") {
		t.Errorf("err = %v", err)
	}

	// The first daemon keeps its socket.
	if _, err := os.Stat(srv.SocketPath()); err != nil {
		t.Errorf("socket of first daemon gone: %v", err)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	home := testHome(t)

	cfg := config.Default()
	cfg.Storage.Backend = "ftp"
	app := newApp("bad", cfg, nil)
	if app.Err() == nil {
		t.Fatal("expected config validation error")
	}
	if _, err := os.Stat(filepath.Join(home, "sessions", "bad", "daemon.sock")); !os.IsNotExist(err) {
		t.Error("no socket should be created for an invalid config")
	}
}
