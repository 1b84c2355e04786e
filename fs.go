package dat

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/meigma/dat/tree"
)

// Open implements fs.FS.
//
// Files are decoded in full when opened. Names are slash paths matched
// without regard to case; a name containing '\' does not exist.
func (a *Archive) Open(name string) (fs.File, error) {
	n, err := a.lookup("open", name)
	if err != nil {
		return nil, err
	}
	if n.IsDir() {
		return &openDir{node: n}, nil
	}
	entry, _ := n.Entry()
	content, err := a.UnpackFile(entry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{Reader: bytes.NewReader(content), info: newInfo(n)}, nil
}

// Stat implements fs.StatFS.
//
// Stat returns entry metadata without reading content. The reported size is
// the decoded size.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	n, err := a.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return newInfo(n), nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	n, err := a.lookup("readfile", name)
	if err != nil {
		return nil, err
	}
	entry, ok := n.Entry()
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: errIsDir}
	}
	content, err := a.UnpackFile(entry)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return content, nil
}

// ReadDir implements fs.ReadDirFS.
//
// ReadDir returns directory entries for the named directory, sorted by name.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	n, err := a.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: errNotDir}
	}
	return dirEntries(n.Children()), nil
}

func (a *Archive) lookup(op, name string) (*tree.Node, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	// A backslash is an ordinary name byte to io/fs, never a separator, and
	// no archive name contains one once parsed.
	if strings.ContainsRune(name, '\\') {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	n, ok := a.tree.Get(name)
	if !ok {
		return nil, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return n, nil
}

var (
	errIsDir  = errors.New("is a directory")
	errNotDir = errors.New("not a directory")
)

// openFile is an fs.File over decoded content.
type openFile struct {
	*bytes.Reader
	info *fileInfo
}

var (
	_ io.ReaderAt = (*openFile)(nil)
	_ io.Seeker   = (*openFile)(nil)
)

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *openFile) Close() error { return nil }

// openDir implements fs.ReadDirFile over a snapshot of a directory node.
type openDir struct {
	node    *tree.Node
	entries []fs.DirEntry
	read    bool
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.node.Path(), Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) { return newInfo(d.node), nil }

func (d *openDir) Close() error { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.read {
		d.entries = dirEntries(d.node.Children())
		d.read = true
	}
	if n <= 0 {
		rest := d.entries
		d.entries = nil
		if rest == nil {
			rest = []fs.DirEntry{}
		}
		return rest, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.entries))
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}

func dirEntries(children []*tree.Node) []fs.DirEntry {
	out := make([]fs.DirEntry, 0, len(children))
	for _, c := range children {
		out = append(out, fs.FileInfoToDirEntry(newInfo(c)))
	}
	return out
}

// fileInfo implements fs.FileInfo for tree nodes.
type fileInfo struct {
	name string
	size int64
	dir  bool
}

func newInfo(n *tree.Node) *fileInfo {
	info := &fileInfo{name: n.Name(), dir: n.IsDir()}
	if entry, ok := n.Entry(); ok {
		info.size = int64(entry.Size) //nolint:gosec // parsed sizes are 32-bit
	}
	return info
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 { return fi.size }

func (fi *fileInfo) Mode() fs.FileMode {
	if fi.dir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

// ModTime returns the zero time; archives record no timestamps.
func (fi *fileInfo) ModTime() time.Time { return time.Time{} }

func (fi *fileInfo) IsDir() bool { return fi.dir }

func (fi *fileInfo) Sys() any { return nil }
