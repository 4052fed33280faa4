package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		out = append(out, m)
	}
	return out
}

func TestNewFileWritesJSONWithSessionFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "rentchatctl.log")
	logger, err := NewFile(path, "work", false)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("hello")
	_ = logger.Sync()

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1 (debug filtered)", len(lines))
	}
	if lines[0]["msg"] != "hello" || lines[0]["session"] != "work" {
		t.Errorf("entry = %v", lines[0])
	}
	if _, ok := lines[0]["pid"]; !ok {
		t.Error("missing pid field")
	}
	if _, ok := lines[0]["ts"]; !ok {
		t.Error("missing ts field")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestNewFileDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.log")
	logger, err := NewFile(path, "main", true)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("visible")
	_ = logger.Sync()
	if lines := readLines(t, path); len(lines) != 1 || lines[0]["level"] != "debug" {
		t.Errorf("lines = %v", lines)
	}
}

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rentchatd.log")
	for i := range 2 {
		logger, err := New(path, "main")
		if err != nil {
			t.Fatal(err)
		}
		logger.Info("start", zap.Int("run", i))
		_ = logger.Sync()
	}
	if n := len(readLines(t, path)); n != 2 {
		t.Errorf("lines = %d, want 2", n)
	}
}
