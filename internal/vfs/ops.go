package vfs

import (
	"io/fs"
	"syscall"
	"time"
)

// Open flags understood by the backends in addition to os.O_*.
const (
	ONonblock = syscall.O_NONBLOCK
)

// Fcntl commands.
const (
	FGetFL = 3
	FSetFL = 4
)

// FileOps is the file capability set of a backend. Every call receives the
// descriptor table slot it operates on; backends keep their per-open state
// in File.ID and File.UserData.
//
// Read returns 0 and a nil error at end of file.
type FileOps interface {
	Open(f *File, flags int, mode fs.FileMode) (id int, err error)
	Read(f *File, p []byte) (int, error)
	Write(f *File, p []byte) (int, error)
	Seek(f *File, offset int64, whence int) (int64, error)
	IsTTY(f *File) bool
	Fstat(f *File) (Stat, error)
	Close(f *File) error
	Fcntl(f *File, cmd int, arg int) (int, error)
}

// DirOps is the directory capability set of a backend. Names passed to it
// are residual names: the part of the path below the backend's mount point.
//
// Readdir returns io.EOF once the cursor is exhausted.
type DirOps interface {
	Opendir(d *Dir, name string) (cursor any, err error)
	Closedir(d *Dir, cursor any) error
	Readdir(d *Dir, cursor any) (*DirEntry, error)
	Mkdir(d *Dir, name string, mode fs.FileMode) error
	Rmdir(d *Dir, name string) error
	Stat(d *Dir, name string) (Stat, error)
}

// File is one slot of the descriptor table. A slot is free iff Ops is nil.
type File struct {
	Ops      FileOps
	Name     string // residual name handed out by the resolver
	ID       int    // backend identifier returned by Open
	Flags    int
	Mode     fs.FileMode
	UserData any
}

// Dir is an open directory stream. It is owned by the caller of Opendir
// until Closedir.
type Dir struct {
	Ops    DirOps
	Name   string
	cursor any
	eof    bool
	closed bool
}

// Stat describes a file as reported by a backend.
type Stat struct {
	Ino     uint32
	Mode    fs.FileMode
	Size    int64
	ModTime time.Time
}

// IsDir reports whether the stat describes a directory.
func (s Stat) IsDir() bool {
	return s.Mode.IsDir()
}

// DirType is the d_type of a directory entry.
type DirType uint8

const (
	DTUnknown DirType = 0
	DTFifo    DirType = 1
	DTChr     DirType = 2
	DTDir     DirType = 4
	DTBlk     DirType = 6
	DTReg     DirType = 8
	DTLnk     DirType = 10
	DTSock    DirType = 12
)

var dirTypeNames = map[DirType]string{
	DTUnknown: "unknown",
	DTFifo:    "fifo",
	DTChr:     "chr",
	DTDir:     "dir",
	DTBlk:     "blk",
	DTReg:     "reg",
	DTLnk:     "lnk",
	DTSock:    "sock",
}

func (t DirType) String() string {
	if name, ok := dirTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// TypeOf maps a file mode to the matching directory entry type.
func TypeOf(mode fs.FileMode) DirType {
	switch {
	case mode.IsDir():
		return DTDir
	case mode.IsRegular():
		return DTReg
	case mode&fs.ModeCharDevice != 0:
		return DTChr
	case mode&fs.ModeDevice != 0:
		return DTBlk
	case mode&fs.ModeNamedPipe != 0:
		return DTFifo
	case mode&fs.ModeSymlink != 0:
		return DTLnk
	case mode&fs.ModeSocket != 0:
		return DTSock
	default:
		return DTUnknown
	}
}

// DirEntry is one entry of a directory stream.
type DirEntry struct {
	Ino  uint32
	Type DirType
	Name string
}
