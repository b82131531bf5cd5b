package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bbbfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("state")
)

// DefaultBackupCount is how many backups a Manager keeps.
const DefaultBackupCount = 5

// Manager handles loading and saving storage snapshots
type Manager struct {
	statePath   string
	backupDir   string
	backupCount int
	mu          sync.Mutex
}

// NewManager creates a new state manager for the given state file path.
// Relative paths are resolved against the working directory of the host
// process; the state and backup directories are created when missing.
func NewManager(statePath string) (*Manager, error) {
	logger.Debug("Creating new state manager with path: %s", statePath)

	absPath, err := filepath.Abs(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state path %s: %w", statePath, err)
	}
	logger.Debug("Resolved state path: %s", absPath)

	stateDir := filepath.Dir(absPath)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	backupDir := filepath.Join(stateDir, ".bbbfs-backups")
	logger.Debug("Creating backup directory: %s", backupDir)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", backupDir, err)
	}

	return &Manager{
		statePath:   absPath,
		backupDir:   backupDir,
		backupCount: DefaultBackupCount,
	}, nil
}

// Path returns the absolute path of the state file.
func (sm *Manager) Path() string {
	return sm.statePath
}

// Load reads the snapshot from disk. A missing or empty state file yields
// a snapshot holding only the root directory.
func (sm *Manager) Load() (*Snapshot, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Loading state from: %s", sm.statePath)
	data, err := os.ReadFile(sm.statePath)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		logger.Info("No state file at %s, starting empty", sm.statePath)
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	logger.Debug("Parsing state file (%d bytes)", len(data))
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if snap.Version > CurrentVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported version %d", snap.Version, CurrentVersion)
	}
	if len(snap.Nodes) == 0 || snap.Nodes[0].Path != "/" {
		root := NewSnapshot().Nodes[0]
		snap.Nodes = append([]Node{root}, snap.Nodes...)
	}

	logger.Info("Loaded %d nodes from %s", len(snap.Nodes), sm.statePath)
	return &snap, nil
}

// Save writes snap to disk after backing up the previous state file.
func (sm *Manager) Save(snap *Snapshot) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Saving state to: %s", sm.statePath)

	if err := sm.createBackup(); err != nil {
		logger.Warn("Failed to create backup: %v", err)
		// Continue with save even if backup fails
	}

	snap.Version = CurrentVersion
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// write then rename so a crash never leaves a truncated state file
	tmp := sm.statePath + ".tmp"
	logger.Trace("Writing %d bytes of state data", len(data))
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, sm.statePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logger.Debug("Saved %d nodes", len(snap.Nodes))
	return nil
}

// createBackup creates a timestamped backup of the current state file
func (sm *Manager) createBackup() error {
	data, err := os.ReadFile(sm.statePath)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405.000000000")
	backupPath := filepath.Join(sm.backupDir, fmt.Sprintf("state-%s.json", timestamp))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return sm.cleanupOldBackups()
}

// Backups returns the backup files, newest first.
func (sm *Manager) Backups() ([]string, error) {
	entries, err := os.ReadDir(sm.backupDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			names = append(names, entry.Name())
		}
	}

	// the timestamp format sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(sm.backupDir, name)
	}
	return paths, nil
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (sm *Manager) cleanupOldBackups() error {
	backups, err := sm.Backups()
	if err != nil {
		return err
	}

	for i := sm.backupCount; i < len(backups); i++ {
		logger.Debug("Removing old backup: %s", backups[i])
		if err := os.Remove(backups[i]); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i], err)
		}
	}

	return nil
}
