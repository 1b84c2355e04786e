package dat

import (
	"bytes"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meigma/dat/internal/testutil"
)

var (
	palette = bytes.Repeat([]byte{0, 0, 0, 63, 63, 63, 32, 16, 8}, 85)
	frame   = testutil.ReferenceImage()
	message = []byte("{100}{}{You see a wooden crate.}\n{101}{}{It is empty.}\n")
)

// dat1Fixture is a format-1 archive with plain and LZSS entries.
func dat1Fixture(t *testing.T) []byte {
	t.Helper()
	return testutil.BuildDat1(t, []testutil.Dat1Dir{
		{Name: ".", Files: []testutil.Dat1File{
			testutil.LZSSDat1("COLOR.PAL", palette),
		}},
		{Name: `ART\CRITTERS`, Files: []testutil.Dat1File{
			testutil.LZSSDat1("HMWARRAA.FRM", frame),
			testutil.PlainDat1("HMWARRAB.FRM", []byte("plain frame")),
		}},
		{Name: `TEXT\ENGLISH\GAME`, Files: []testutil.Dat1File{
			testutil.PlainDat1("PRO_ITEM.MSG", message),
		}},
	})
}

// dat2Fixture is a format-2 archive with plain, zlib and raw deflate entries.
func dat2Fixture(t *testing.T) []byte {
	t.Helper()
	return testutil.BuildDat2(t, []testutil.Dat2File{
		testutil.ZlibDat2(t, "COLOR.PAL", palette),
		testutil.ZlibDat2(t, `ART\CRITTERS\HMWARRAA.FRM`, frame),
		testutil.PlainDat2(`ART\CRITTERS\HMWARRAB.FRM`, []byte("plain frame")),
		{Name: `TEXT\ENGLISH\GAME\PRO_ITEM.MSG`, Compressed: true, Size: uint32(len(message)), Stored: testutil.Deflate(t, message)},
	})
}

func openFixture(t *testing.T, data []byte, opts ...Option) *Archive {
	t.Helper()
	a, err := Open(bytes.NewReader(data), opts...)
	require.NoError(t, err)
	return a
}

// countingReader counts Read calls on the wrapped stream.
type countingReader struct {
	io.ReadSeeker
	reads atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.reads.Add(1)
	return r.ReadSeeker.Read(p)
}

// sizeMismatchDat2 holds one entry "long" that declares 5 more bytes than
// its deflate stream yields.
func sizeMismatchDat2(t *testing.T, content []byte) []byte {
	t.Helper()
	return testutil.BuildDat2(t, []testutil.Dat2File{
		{Name: "LONG", Compressed: true, Size: uint32(len(content) + 5), Stored: testutil.Zlib(t, content)}, //nolint:gosec // test input is small
	})
}
