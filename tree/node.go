package tree

import (
	"slices"
	"strings"
	"sync"
)

// FileEntry locates one stored file inside an archive.
type FileEntry struct {
	// Offset is the absolute byte offset of the stored bytes.
	Offset uint64

	// Size is the decompressed size in bytes.
	Size uint64

	// Compressed reports whether the stored bytes must be decoded.
	Compressed bool

	// PackedSize is the stored size of a compressed entry.
	PackedSize uint64
}

// StoredSize returns the number of bytes the entry occupies in the archive.
func (e FileEntry) StoredSize() uint64 {
	if e.Compressed {
		return e.PackedSize
	}
	return e.Size
}

// Kind distinguishes directories from files.
type Kind uint8

const (
	KindDir Kind = iota
	KindFile
)

// Node is a directory or file in a FileTree.
//
// Name and path never change after creation. Children are guarded by the
// node's lock; readers hold it shared, insertion and sorting hold it
// exclusively.
type Node struct {
	mu       sync.RWMutex
	name     string
	path     string
	kind     Kind
	entry    FileEntry
	children []*Node
}

func newDir(name, path string) *Node {
	return &Node{name: name, path: path, kind: KindDir}
}

func newFile(name, path string, entry FileEntry) *Node {
	return &Node{name: name, path: path, kind: KindFile, entry: entry}
}

// Name returns the last path segment.
func (n *Node) Name() string { return n.name }

// Path returns the lowercase slash-separated path from the root.
// The root's path is ".".
func (n *Node) Path() string { return n.path }

// Kind returns whether the node is a directory or a file.
func (n *Node) Kind() Kind { return n.kind }

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.kind == KindDir }

// IsFile reports whether the node is a file.
func (n *Node) IsFile() bool { return n.kind == KindFile }

// Entry returns the file entry; ok is false for directories.
func (n *Node) Entry() (FileEntry, bool) {
	if n.kind != KindFile {
		return FileEntry{}, false
	}
	return n.entry, true
}

// Children returns a snapshot of the directory's children.
// Files have no children.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.children)
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.children)
}

// findChild looks up a direct child by name. sorted selects binary search,
// which is only valid once the children have been sorted.
func (n *Node) findChild(name string, sorted bool) *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.findChildLocked(name, sorted)
}

func (n *Node) findChildLocked(name string, sorted bool) *Node {
	if sorted {
		i, ok := slices.BinarySearchFunc(n.children, name, compareName)
		if !ok {
			return nil
		}
		return n.children[i]
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// addChild attaches child, or returns the existing child of the same name
// if another inserter won the race after the caller's lookup.
//
// search selects a binary-search insertion and requires sorted children.
// Otherwise the child is appended, and keepSorted re-sorts the children.
func (n *Node) addChild(child *Node, search, keepSorted bool) (*Node, error) {
	if n.kind != KindDir {
		return nil, ErrTreeNode
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if search {
		i, ok := slices.BinarySearchFunc(n.children, child.name, compareName)
		if ok {
			return n.children[i], nil
		}
		n.children = slices.Insert(n.children, i, child)
		return child, nil
	}
	if existing := n.findChildLocked(child.name, false); existing != nil {
		return existing, nil
	}
	n.children = append(n.children, child)
	if keepSorted {
		sortNodes(n.children)
	}
	return child, nil
}

// sortRecursive sorts the children of n and of every directory below it.
func (n *Node) sortRecursive() error {
	if n.kind != KindDir {
		return nil
	}
	if !n.mu.TryLock() {
		return ErrTree
	}
	sortNodes(n.children)
	children := n.children
	n.mu.Unlock()

	for _, c := range children {
		if err := c.sortRecursive(); err != nil {
			return err
		}
	}
	return nil
}

func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int { return strings.Compare(a.name, b.name) })
}

func compareName(c *Node, name string) int {
	return strings.Compare(c.name, name)
}
