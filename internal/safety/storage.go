package safety

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"vlearn/internal/logging"
)

// storageCheckInterval bounds how often the monitor re-walks the storage
// directory. Persisted learning data grows slowly, so a coarse interval is
// plenty.
const storageCheckInterval = 30 * time.Second

// StorageMonitor answers whether persistent storage is within its configured
// size ceiling.
type StorageMonitor struct {
	path         string
	maxStorageMB int

	mu          sync.Mutex
	lastCheck   time.Time
	lastVerdict bool
}

// NewStorageMonitor creates a monitor for the given storage directory.
func NewStorageMonitor(path string, maxStorageMB int) *StorageMonitor {
	return &StorageMonitor{path: path, maxStorageMB: maxStorageMB, lastVerdict: true}
}

// WithinLimit reports whether the storage directory is under its ceiling.
// Errors while checking are treated as "not available".
func (m *StorageMonitor) WithinLimit() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategorySafety).Error("storage check panicked: %v", r)
			ok = false
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < storageCheckInterval {
		return m.lastVerdict
	}
	m.lastCheck = time.Now()

	size, err := dirSize(m.path)
	if err != nil {
		logging.SafetyDebug("storage size check failed: %v", err)
		m.lastVerdict = false
		return false
	}
	sizeMB := int(size / (1024 * 1024))
	m.lastVerdict = m.maxStorageMB <= 0 || sizeMB < m.maxStorageMB
	if !m.lastVerdict {
		logging.Safety("storage ceiling reached: %dMB limit=%dMB", sizeMB, m.maxStorageMB)
	}
	return m.lastVerdict
}

// dirSize sums regular file sizes under root. A missing directory counts as
// empty - the stores will create it on first write.
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, missing root counts as empty
		}
		if d.Type().IsRegular() {
			if info, ierr := d.Info(); ierr == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}
