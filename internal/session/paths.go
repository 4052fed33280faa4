package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory.
const HomeEnv = "RENTCHAT_HOME"

// BaseDir returns $RENTCHAT_HOME, or ~/.rentchat.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rentchat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DocumentsDBPath returns the daemon's document database.
func DocumentsDBPath(name string) string {
	return filepath.Join(Dir(name), "documents.db")
}

// FilesDir returns where the local storage backend keeps uploaded files.
func FilesDir(name string) string {
	return filepath.Join(Dir(name), "files")
}

// DeviceDir holds one key-value database per signed-in user.
func DeviceDir(name string) string {
	return filepath.Join(Dir(name), "devices")
}

// DevicePath returns the key-value database of userID on this device.
func DevicePath(name, userID string) string {
	return filepath.Join(DeviceDir(name), userID+".db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file of a binary, e.g. logs/rentchatd.log.
func LogPath(name, binary string) string {
	return filepath.Join(LogDir(name), binary+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name), DeviceDir(name), FilesDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
