package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendXLSX   = "xlsx"
	BackendMemory = "memory"
)

// Open creates the configured backend inside dataDir. Persistent backends share
// the advisory lock file projects.lock so several replicas can use one directory.
func Open(backend, dataDir string, lockTimeout time.Duration) (StorageInterface, error) {
	if backend == BackendMemory {
		return New(), nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	lock := NewFileLock(filepath.Join(dataDir, "projects.lock"), lockTimeout)

	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStorage(filepath.Join(dataDir, "projects.db"), lock)
	case BackendXLSX:
		return NewXLSXStorage(filepath.Join(dataDir, "projects.xlsx"), lock)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
