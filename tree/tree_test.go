package tree

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockTree(t *testing.T) *FileTree {
	t.Helper()
	tr := New()
	_, err := tr.Insert("color.pal", FileEntry{Offset: 1})
	require.NoError(t, err)
	_, err = tr.Insert("art/file1", FileEntry{Offset: 2})
	require.NoError(t, err)
	return tr
}

func TestGet(t *testing.T) {
	t.Parallel()

	tr := mockTree(t)

	n, ok := tr.Get("./color.pal")
	require.True(t, ok)
	assert.True(t, n.IsFile())
	assert.Equal(t, "color.pal", n.Name())
	assert.Equal(t, "color.pal", n.Path())

	n, ok = tr.Get("art")
	require.True(t, ok)
	assert.True(t, n.IsDir())
	assert.Equal(t, "art", n.Name())

	n, ok = tr.Get("art/file1")
	require.True(t, ok)
	entry, isFile := n.Entry()
	require.True(t, isFile)
	assert.Equal(t, uint64(2), entry.Offset)
	assert.Equal(t, "art/file1", n.Path())

	_, ok = tr.Get("file/that/does/not/exist")
	assert.False(t, ok)

	_, ok = tr.Get("color.pal/child")
	assert.False(t, ok)
}

func TestGetRoot(t *testing.T) {
	t.Parallel()

	tr := mockTree(t)
	for _, p := range []string{".", "./", "", "/"} {
		n, ok := tr.Get(p)
		require.True(t, ok, p)
		assert.Same(t, tr.Root(), n, p)
		assert.Equal(t, ".", n.Name())
	}

	require.NoError(t, tr.Sort())
	n, ok := tr.Get("./")
	require.True(t, ok)
	assert.Same(t, tr.Root(), n)
}

func TestGetSeparatorsAndCase(t *testing.T) {
	t.Parallel()

	tr := New()
	_, err := tr.InsertUnsorted(`art\critters\HMWARRAA.FRM`, FileEntry{Size: 9})
	require.NoError(t, err)

	for _, sorted := range []bool{false, true} {
		if sorted {
			require.NoError(t, tr.Sort())
		}
		for _, p := range []string{
			`art\critters\hmwarraa.frm`,
			"art/critters/hmwarraa.frm",
			"ART/Critters\\HMWarraa.FRM",
			"./art//critters/hmwarraa.frm",
		} {
			n, ok := tr.Get(p)
			require.True(t, ok, "sorted=%v path=%q", sorted, p)
			assert.Equal(t, "art/critters/hmwarraa.frm", n.Path())
		}
	}
}

func TestInsertKeepsChildrenSorted(t *testing.T) {
	t.Parallel()

	tr := New()
	for _, name := range []string{"m", "c", "x", "a", "q"} {
		_, err := tr.Insert("dir/"+name, FileEntry{})
		require.NoError(t, err)
	}
	dir, ok := tr.Get("dir")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c", "m", "q", "x"}, names(dir.Children()))
}

func TestInsertUnsortedKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	tr := New()
	for _, name := range []string{"m", "c", "x"} {
		_, err := tr.InsertUnsorted("dir/"+name, FileEntry{})
		require.NoError(t, err)
	}
	dir, ok := tr.Get("dir")
	require.True(t, ok)
	assert.Equal(t, []string{"m", "c", "x"}, names(dir.Children()))

	require.NoError(t, tr.Sort())
	assert.Equal(t, []string{"c", "m", "x"}, names(dir.Children()))
	assert.True(t, tr.Sorted())
}

func TestInsertUnsortedAfterSort(t *testing.T) {
	t.Parallel()

	tr := mockTree(t)
	require.NoError(t, tr.Sort())

	_, err := tr.InsertUnsorted("late", FileEntry{})
	require.ErrorIs(t, err, ErrTree)

	// Sorted inserts remain valid in the query phase.
	_, err = tr.Insert("art/file0", FileEntry{})
	require.NoError(t, err)
	dir, _ := tr.Get("art")
	assert.Equal(t, []string{"file0", "file1"}, names(dir.Children()))
	_, ok := tr.Get("art/file0")
	assert.True(t, ok)
}

func TestInsertThroughFile(t *testing.T) {
	t.Parallel()

	tr := mockTree(t)
	_, err := tr.Insert("color.pal/inner", FileEntry{})
	require.ErrorIs(t, err, ErrTreeNode)

	_, err = tr.InsertUnsorted("art", FileEntry{})
	require.ErrorIs(t, err, ErrTreeNode)

	_, err = tr.Insert("./", FileEntry{})
	require.ErrorIs(t, err, ErrTreeNode)
}

func TestInsertDuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	tr := New()
	_, err := tr.InsertUnsorted("a/b", FileEntry{Offset: 1})
	require.NoError(t, err)
	n, err := tr.InsertUnsorted("A\\B", FileEntry{Offset: 2})
	require.NoError(t, err)

	entry, _ := n.Entry()
	assert.Equal(t, uint64(1), entry.Offset)
	assert.Equal(t, 1, tr.Len())
}

func TestSortIsOrderIndependent(t *testing.T) {
	t.Parallel()

	var paths []string
	for d := range 6 {
		for f := range 20 {
			paths = append(paths, fmt.Sprintf("dir%d/sub%d/file%02d.dat", d, f%3, f))
		}
	}

	build := func(seed uint64) *FileTree {
		shuffled := slices.Clone(paths)
		r := rand.New(rand.NewPCG(seed, seed^0x9E3779B9))
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		tr := New()
		for _, p := range shuffled {
			_, err := tr.InsertUnsorted(p, FileEntry{})
			require.NoError(t, err)
		}
		require.NoError(t, tr.Sort())
		return tr
	}

	want := shape(build(1))
	for seed := uint64(2); seed < 6; seed++ {
		assert.Equal(t, want, shape(build(seed)), "seed %d", seed)
	}
	assert.Equal(t, len(paths), build(7).Len())
}

func TestFilesDepthFirst(t *testing.T) {
	t.Parallel()

	tr := New()
	for _, p := range []string{"b/2", "a", "b/1", "c/d/e"} {
		_, err := tr.InsertUnsorted(p, FileEntry{})
		require.NoError(t, err)
	}
	require.NoError(t, tr.Sort())

	var got []string
	for n := range tr.Files() {
		got = append(got, n.Path())
	}
	assert.Equal(t, []string{"a", "b/1", "b/2", "c/d/e"}, got)

	// Restartable.
	var again []string
	for n := range tr.Files() {
		again = append(again, n.Path())
	}
	assert.Equal(t, got, again)

	// Early stop.
	count := 0
	for range tr.Files() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()

	tr := New()
	for i := range 500 {
		_, err := tr.InsertUnsorted(fmt.Sprintf("d%d/f%d", i%7, i), FileEntry{Offset: uint64(i)})
		require.NoError(t, err)
	}
	require.NoError(t, tr.Sort())

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; i < 500; i += 8 {
				n, ok := tr.Get(fmt.Sprintf("D%d\\F%d", i%7, i))
				if !assert.True(t, ok) {
					return
				}
				entry, _ := n.Entry()
				assert.Equal(t, uint64(i), entry.Offset)
			}
			count := 0
			for range tr.Files() {
				count++
			}
			assert.Equal(t, 500, count)
		}()
	}
	wg.Wait()
}

func TestSplit(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Split("."))
	assert.Empty(t, Split("./"))
	assert.Equal(t, []string{"a", "b"}, Split(`.\A\b`))
	assert.Equal(t, []string{"a", "b"}, Split("/a//b/"))
}

func TestStoredSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(10), FileEntry{Size: 10}.StoredSize())
	assert.Equal(t, uint64(4), FileEntry{Size: 10, Compressed: true, PackedSize: 4}.StoredSize())
}

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name())
	}
	return out
}

// shape flattens the tree into "path: children" lines.
func shape(tr *FileTree) []string {
	var out []string
	tr.Walk(func(n *Node) bool {
		if n.IsDir() {
			out = append(out, fmt.Sprintf("%s: %v", n.Path(), names(n.Children())))
		}
		return true
	})
	return out
}
