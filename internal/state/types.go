// Package state provides snapshot persistence for the in-memory storage
// backend.
package state

import (
	"io/fs"
	"time"
)

// CurrentVersion is the snapshot format written by this package.
const CurrentVersion = 1

// Snapshot is the persisted form of a storage tree.
type Snapshot struct {
	// Nodes in parent-before-child order; "/" is always present
	Nodes []Node `json:"nodes"`

	// Version for future compatibility
	Version int `json:"version"`
}

// Node is one directory or regular file of a snapshot.
type Node struct {
	Path    string      `json:"path"`
	Dir     bool        `json:"dir"`
	Mode    fs.FileMode `json:"mode"`
	ModTime time.Time   `json:"mod_time"`
	Data    []byte      `json:"data,omitempty"`
}

// NewSnapshot returns a snapshot holding only the root directory.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Nodes: []Node{
			{Path: "/", Dir: true, Mode: fs.ModeDir | 0755},
		},
		Version: CurrentVersion,
	}
}
