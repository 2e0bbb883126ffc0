package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	AppName = "token-sync"
)

var (
	uaMu      sync.RWMutex
	userAgent = fmt.Sprintf("%s/dev (%s; %s)", AppName, runtime.GOOS, runtime.GOARCH)
)

// UserAgent returns the User-Agent sent to upstream feeds.
func UserAgent() string {
	uaMu.RLock()
	defer uaMu.RUnlock()
	return userAgent
}

// SetVersion stamps the build version into the User-Agent.
func SetVersion(version string) {
	uaMu.Lock()
	defer uaMu.Unlock()
	userAgent = fmt.Sprintf("%s/%s (%s; %s)", AppName, version, runtime.GOOS, runtime.GOARCH)
}

// GetWorkspaceDir returns the root directory for runtime data (journal,
// snapshots, lock file). A local "_workspace" directory wins when present.
func GetWorkspaceDir() string {
	localDir := "_workspace"
	if _, err := os.Stat(localDir); err == nil {
		return localDir
	}

	var baseDir string
	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, "Library", "Application Support")
	case "linux":
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome != "" {
			baseDir = dataHome
		} else {
			home, _ := os.UserHomeDir()
			baseDir = filepath.Join(home, ".local", "share")
		}
	default:
		return localDir
	}

	return filepath.Join(baseDir, AppName)
}

// ResolvePath anchors a relative runtime path in the workspace directory.
// Absolute paths and ":memory:" are returned unchanged.
func ResolvePath(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GetWorkspaceDir(), p)
}

// EnsureDir creates the directory if it doesn't exist with safe permissions (0755).
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// CreateLockFile prevents two instances from sharing one workspace.
// It returns a release function, or an error if the lock is already held.
func CreateLockFile(workDir string) (func(), error) {
	lockPath := filepath.Join(workDir, "instance.lock")

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another instance is already running (lock file exists: %s)", lockPath)
		}
		return nil, err
	}

	fmt.Fprintf(f, "%d", os.Getpid())
	f.Close()

	return func() { os.Remove(lockPath) }, nil
}

// ResolveConfigPath finds config.yaml in ./configs, then the OS config dir.
// It returns "" when neither exists.
func ResolveConfigPath() string {
	defaultPath := filepath.Join("configs", "config.yaml")
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}

	configRoot, err := os.UserConfigDir()
	if err == nil {
		osPath := filepath.Join(configRoot, AppName, "config.yaml")
		if _, err := os.Stat(osPath); err == nil {
			return osPath
		}
	}
	return ""
}
