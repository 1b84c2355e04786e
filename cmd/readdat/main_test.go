package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dat/internal/testutil"
)

var frame = testutil.ReferenceImage()

func writeArchive(t *testing.T) string {
	t.Helper()
	data := testutil.BuildDat1(t, []testutil.Dat1Dir{
		{Name: ".", Files: []testutil.Dat1File{
			testutil.PlainDat1("COLOR.PAL", []byte("palette")),
		}},
		{Name: `ART\CRITTERS`, Files: []testutil.Dat1File{
			testutil.LZSSDat1("HMWARRAA.FRM", frame),
		}},
	})
	path := filepath.Join(t.TempDir(), "master.dat")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestList(t *testing.T) {
	t.Parallel()

	out, _, err := runCLI(t, writeArchive(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "art/critters/hmwarraa.frm               : Compressed", lines[0])
	assert.Equal(t, "color.pal                               : Uncompressed", lines[1])
}

func TestListMatch(t *testing.T) {
	t.Parallel()

	out, _, err := runCLI(t, "-match", "*.PAL", writeArchive(t))
	require.NoError(t, err)
	assert.Equal(t, "color.pal                               : Uncompressed\n", out)

	_, _, err = runCLI(t, "-match", "[", writeArchive(t))
	require.Error(t, err)
}

func TestListDigest(t *testing.T) {
	t.Parallel()

	out, _, err := runCLI(t, "-digest", writeArchive(t))
	require.NoError(t, err)
	assert.Contains(t, out, digest.FromBytes(frame).String())
	assert.Contains(t, out, digest.FromString("palette").String())
}

func TestListDigestMemoryCache(t *testing.T) {
	t.Parallel()

	out, stderr, err := runCLI(t, "-v", "-digest", "-memcache", "8", writeArchive(t))
	require.NoError(t, err)
	assert.Contains(t, out, digest.FromBytes(frame).String())
	assert.Contains(t, stderr, "cache miss")
	assert.NotContains(t, stderr, "cache disabled")

	_, _, err = runCLI(t, "-cache", t.TempDir(), "-memcache", "8", writeArchive(t))
	require.Error(t, err)
}

func TestWriteOne(t *testing.T) {
	t.Parallel()
	archive := writeArchive(t)

	out, _, err := runCLI(t, "-f", `ART\CRITTERS\HMWARRAA.FRM`, "-u", archive)
	require.NoError(t, err)
	assert.Equal(t, string(frame), out)

	raw, _, err := runCLI(t, "-f", "art/critters/hmwarraa.frm", archive)
	require.NoError(t, err)
	assert.Equal(t, string(testutil.EncodeLZSS(frame)), raw)

	_, _, err = runCLI(t, "-f", "missing.frm", archive)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	cacheDir := t.TempDir()
	out, _, err := runCLI(t, "-e", dest, "-workers", "2", "-cache", cacheDir, writeArchive(t))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("extracted=2 skipped=0 bytes=%d\n", len(frame)+len("palette")), out)

	got, err := os.ReadFile(filepath.Join(dest, "art", "critters", "hmwarraa.frm"))
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	cached, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.NotEmpty(t, cached)
}

func TestFlags(t *testing.T) {
	t.Parallel()

	_, _, err := runCLI(t)
	require.Error(t, err)

	_, _, err = runCLI(t, "-f", "a", "-e", "b", "x.dat")
	require.Error(t, err)

	_, stderr, err := runCLI(t, "-h")
	require.NoError(t, err)
	assert.Contains(t, stderr, "usage: readdat")

	_, _, err = runCLI(t, filepath.Join(t.TempDir(), "missing.dat"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerboseLogging(t *testing.T) {
	t.Parallel()

	_, stderr, err := runCLI(t, "-v", writeArchive(t))
	require.NoError(t, err)
	assert.Contains(t, stderr, "archive opened")
}
