// Package mount maps path prefixes to backends and serves the /dev device
// directory.
package mount

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"bbbfs/internal/logging"
	"bbbfs/internal/path"
	"bbbfs/internal/vfs"
)

// DevDir is the directory character devices are registered under.
const DevDir = "/dev"

var (
	mountLogger = logging.GetLogger().WithPrefix("mount")
)

// Mount is one entry of a Table.
type Mount struct {
	Prefix string
	Dir    vfs.DirOps
	File   vfs.FileOps
}

// Table is a vfs.Resolver over mounted backends. The longest prefix on a
// component boundary wins; devices under /dev take precedence over a
// backend mounted at "/".
type Table struct {
	mu      sync.RWMutex
	mounts  []Mount // sorted by descending prefix length
	devices map[string]vfs.FileOps
}

// ensure Table implements vfs.Resolver
var _ vfs.Resolver = (*Table)(nil)

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{devices: make(map[string]vfs.FileOps)}
}

// Mount binds dir and file to prefix. Either capability set may be nil.
func (t *Table) Mount(prefix string, dir vfs.DirOps, file vfs.FileOps) error {
	prefix = path.Normalize(prefix)
	if !path.IsAbs(prefix) {
		return fmt.Errorf("mount prefix %q is not absolute", prefix)
	}
	if dir == nil && file == nil {
		return fmt.Errorf("mount %s: no backend", prefix)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.mounts {
		if m.Prefix == prefix {
			return fmt.Errorf("mount %s: %w", prefix, fs.ErrExist)
		}
	}
	t.mounts = append(t.mounts, Mount{Prefix: prefix, Dir: dir, File: file})
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].Prefix) > len(t.mounts[j].Prefix)
	})

	mountLogger.Info("Mounted backend at %s", prefix)
	return nil
}

// Unmount removes the backend bound to prefix.
func (t *Table) Unmount(prefix string) error {
	prefix = path.Normalize(prefix)

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.mounts {
		if m.Prefix == prefix {
			t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
			mountLogger.Info("Unmounted %s", prefix)
			return nil
		}
	}
	return fmt.Errorf("unmount %s: %w", prefix, fs.ErrNotExist)
}

// Mounts returns the mounted prefixes, longest first.
func (t *Table) Mounts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prefixes := make([]string, len(t.mounts))
	for i, m := range t.mounts {
		prefixes[i] = m.Prefix
	}
	return prefixes
}

// AddDevice registers ops as the character device /dev/<name>.
func (t *Table) AddDevice(name string, ops vfs.FileOps) error {
	if name == "" || strings.ContainsRune(name, path.Separator) || name == "." || name == ".." {
		return fmt.Errorf("invalid device name %q", name)
	}
	if ops == nil {
		return fmt.Errorf("device %s: no backend", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.devices[name]; ok {
		return fmt.Errorf("device %s: %w", name, fs.ErrExist)
	}
	t.devices[name] = ops
	mountLogger.Info("Registered device %s/%s", DevDir, name)
	return nil
}

// Devices returns the registered device names, sorted.
func (t *Table) Devices() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.deviceNames()
}

func (t *Table) deviceNames() []string {
	names := make([]string, 0, len(t.devices))
	for name := range t.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// residual returns name below prefix, or false when prefix does not
// contain name on a component boundary.
func residual(prefix, name string) (string, bool) {
	if prefix == path.Root {
		return name, true
	}
	if name == prefix {
		return path.Root, true
	}
	if strings.HasPrefix(name, prefix) && name[len(prefix)] == path.Separator {
		return name[len(prefix):], true
	}
	return "", false
}

func (t *Table) find(name string) (Mount, string, bool) {
	for _, m := range t.mounts {
		if rest, ok := residual(m.Prefix, name); ok {
			return m, rest, true
		}
	}
	return Mount{}, "", false
}

// device returns the device named by name when name is directly under
// /dev. The caller holds t.mu.
func (t *Table) device(name string) (vfs.FileOps, string, bool) {
	rest, ok := residual(DevDir, name)
	if !ok || rest == path.Root || strings.Count(rest, "/") != 1 {
		return nil, "", false
	}
	ops, ok := t.devices[rest[1:]]
	return ops, rest, ok
}

// ResolveDir implements vfs.Resolver.
func (t *Table) ResolveDir(name string) (vfs.DirOps, string) {
	name = path.Normalize(name)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.devices) > 0 {
		if rest, ok := residual(DevDir, name); ok {
			if rest == path.Root {
				return devDir{t}, rest
			}
			if _, _, ok := t.device(name); ok {
				return devDir{t}, rest
			}
		}
	}
	m, rest, ok := t.find(name)
	if !ok || m.Dir == nil {
		return nil, name
	}
	return m.Dir, rest
}

// ResolveFile implements vfs.Resolver.
func (t *Table) ResolveFile(name string) (vfs.FileOps, string) {
	name = path.Normalize(name)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if ops, rest, ok := t.device(name); ok {
		return ops, rest
	}
	m, rest, ok := t.find(name)
	if !ok || m.File == nil {
		return nil, name
	}
	return m.File, rest
}
