package memfs

import (
	"fmt"
	"io/fs"
	"sort"

	"bbbfs/internal/path"
	"bbbfs/internal/state"
)

// Export returns the tree in persisted form, parents before children.
func (m *FS) Export() *state.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &state.Snapshot{Version: state.CurrentVersion}
	var walk func(n *node, p string)
	walk = func(n *node, p string) {
		sn := state.Node{Path: p, Dir: n.isDir(), Mode: n.mode, ModTime: n.modTime}
		if !n.isDir() {
			sn.Data = append([]byte(nil), n.data...)
		}
		snap.Nodes = append(snap.Nodes, sn)

		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := p + "/" + name
			if p == "/" {
				child = "/" + name
			}
			walk(n.children[name], child)
		}
	}
	walk(m.root, "/")
	return snap
}

// Import replaces the tree with snap. Inode numbers are reassigned in
// snapshot order. Descriptors open on the old tree keep their nodes.
func (m *FS) Import(snap *state.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	for _, sn := range snap.Nodes {
		p := path.Normalize(sn.Path)
		if !path.IsAbs(p) {
			m.reset()
			return fmt.Errorf("snapshot node %q is not absolute", sn.Path)
		}
		if p == path.Root {
			if sn.Dir {
				m.root.mode = fs.ModeDir | sn.Mode.Perm()
				m.root.modTime = sn.ModTime
			}
			continue
		}

		dir, base, err := m.lookupParent(p)
		if err != nil {
			m.reset()
			return fmt.Errorf("snapshot node %q: %w", sn.Path, err)
		}
		if _, ok := dir.children[base]; ok {
			m.reset()
			return fmt.Errorf("snapshot node %q: %w", sn.Path, fs.ErrExist)
		}

		mode := sn.Mode.Perm()
		if sn.Dir {
			mode |= fs.ModeDir
		}
		parentTime := dir.modTime
		n := m.newNode(base, mode, dir)
		n.modTime = sn.ModTime
		dir.modTime = parentTime
		if !sn.Dir {
			n.data = append([]byte(nil), sn.Data...)
		}
	}

	memLogger.Info("Imported %d nodes", m.nextIno-1)
	return nil
}
