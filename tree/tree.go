// Package tree provides the path-addressable index of an archive's entries.
//
// A FileTree has two phases. While building, entries are appended with
// InsertUnsorted and lookups scan children linearly. Sort moves the tree to
// its query phase once, after which lookups binary-search each directory.
// Insert keeps directories sorted at every step and may be used in either
// phase.
//
// Paths are matched case-insensitively and may use either '/' or '\' as the
// separator. The root is named "." and is returned for ".", "./" and "".
package tree

import (
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/meigma/dat/internal/dattype"
)

// Re-export sentinel errors.
var (
	// ErrTree is returned when the tree cannot be mutated in its current phase.
	ErrTree = dattype.ErrTree

	// ErrTreeNode is returned when a path walks through a file.
	ErrTreeNode = dattype.ErrTreeNode
)

// FileTree is a hierarchy of directory and file nodes rooted at ".".
//
// Lookups and iteration are safe for concurrent use. Mutation is expected
// from a single goroutine while the tree is being built.
type FileTree struct {
	root   *Node
	sorted atomic.Bool
	files  atomic.Int64
}

// New returns an empty tree in its building phase.
func New() *FileTree {
	return &FileTree{root: newDir(".", ".")}
}

// Root returns the root directory node.
func (t *FileTree) Root() *Node {
	return t.root
}

// Sorted reports whether Sort has been called.
func (t *FileTree) Sorted() bool {
	return t.sorted.Load()
}

// Len returns the number of file nodes in the tree.
func (t *FileTree) Len() int {
	return int(t.files.Load())
}

// Get returns the node at path, or false if any segment is missing.
func (t *FileTree) Get(path string) (*Node, bool) {
	sorted := t.sorted.Load()
	node := t.root
	for _, seg := range Split(path) {
		node = node.findChild(seg, sorted)
		if node == nil {
			return nil, false
		}
	}
	return node, true
}

// Insert adds a file at path, keeping every directory on the way sorted.
func (t *FileTree) Insert(path string, entry FileEntry) (*Node, error) {
	return t.insert(path, entry, true)
}

// InsertUnsorted adds a file at path by appending to each directory.
// It is meant for bulk loading and fails with ErrTree once the tree is sorted.
func (t *FileTree) InsertUnsorted(path string, entry FileEntry) (*Node, error) {
	if t.sorted.Load() {
		return nil, fmt.Errorf("%w: unsorted insert into sorted tree", ErrTree)
	}
	return t.insert(path, entry, false)
}

// insert walks path from the root, creating directories as needed.
// The final segment becomes a file node; an existing file is kept as-is.
func (t *FileTree) insert(path string, entry FileEntry, sorted bool) (*Node, error) {
	segs := Split(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrTreeNode)
	}
	// Directories are only known to be sorted once the tree has been sorted.
	search := sorted && t.sorted.Load()

	node := t.root
	for i, seg := range segs {
		if node.kind != KindDir {
			return nil, fmt.Errorf("%w: %s is a file", ErrTreeNode, node.path)
		}
		last := i == len(segs)-1

		// findChild releases the read lock before addChild takes the write lock.
		child := node.findChild(seg, search)
		if child == nil {
			childPath := join(node.path, seg)
			if last {
				child = newFile(seg, childPath, entry)
			} else {
				child = newDir(seg, childPath)
			}
			added, err := node.addChild(child, search, sorted)
			if err != nil {
				return nil, fmt.Errorf("insert %s: %w", path, err)
			}
			if added == child && last {
				t.files.Add(1)
			}
			child = added
		}
		node = child
	}
	if node.kind != KindFile {
		return nil, fmt.Errorf("%w: %s is a directory", ErrTreeNode, node.path)
	}
	return node, nil
}

// Sort orders the children of every directory by name and moves the tree
// into its query phase. Calling Sort again re-sorts without effect.
func (t *FileTree) Sort() error {
	if err := t.root.sortRecursive(); err != nil {
		return fmt.Errorf("sort tree: %w", err)
	}
	t.sorted.Store(true)
	return nil
}

// Files returns a depth-first sequence of every file node.
// The sequence can be ranged over repeatedly and does not modify the tree.
func (t *FileTree) Files() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		t.Walk(func(n *Node) bool {
			if n.kind != KindFile {
				return true
			}
			return yield(n)
		})
	}
}

// Walk calls fn for every node in depth-first order, starting at the root.
// Walk stops early when fn returns false.
func (t *FileTree) Walk(fn func(*Node) bool) {
	walk(t.root, fn)
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	if n.kind != KindDir {
		return true
	}
	for _, c := range n.Children() {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// Split normalizes path into lowercase segments.
//
// Both separators are accepted, empty segments are dropped and a leading "."
// segment refers to the root.
func Split(path string) []string {
	segs := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool {
		return r == '/' || r == '\\'
	})
	if len(segs) > 0 && segs[0] == "." {
		segs = segs[1:]
	}
	return segs
}

func join(parent, name string) string {
	if parent == "." {
		return name
	}
	return parent + "/" + name
}
