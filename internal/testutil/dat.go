// Package testutil builds synthetic archives for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Dat1File describes one file record of a format-1 archive.
type Dat1File struct {
	Name       string
	Attributes int32
	// Size is the decompressed size field.
	Size int32
	// PackedSize is the size_compressed field; zero marks the entry uncompressed.
	PackedSize int32
	// Stored is placed in the payload region and its offset recorded.
	// When nil, Offset is written as-is.
	Stored []byte
	Offset int32
}

// Dat1Dir describes one directory of a format-1 archive.
type Dat1Dir struct {
	Name  string
	Files []Dat1File
}

// Dat1Header holds the leading header fields of a format-1 archive.
type Dat1Header struct {
	ID       int32
	Checksum int32
}

// PlainDat1 returns an uncompressed format-1 file record.
func PlainDat1(name string, content []byte) Dat1File {
	return Dat1File{Name: name, Size: int32(len(content)), Stored: content} //nolint:gosec // test inputs are small
}

// LZSSDat1 returns an LZSS-compressed format-1 file record.
func LZSSDat1(name string, content []byte) Dat1File {
	stored := EncodeLZSS(content)
	return Dat1File{
		Name:       name,
		Size:       int32(len(content)), //nolint:gosec // test inputs are small
		PackedSize: int32(len(stored)),  //nolint:gosec // test inputs are small
		Stored:     stored,
	}
}

// BuildDat1 encodes dirs as a format-1 archive with id 0x0A.
func BuildDat1(tb testing.TB, dirs []Dat1Dir) []byte {
	tb.Helper()
	return BuildDat1WithHeader(tb, Dat1Header{ID: 0x0A}, dirs)
}

// BuildDat1WithHeader encodes dirs as a format-1 archive using the given header fields.
func BuildDat1WithHeader(tb testing.TB, h Dat1Header, dirs []Dat1Dir) []byte {
	tb.Helper()

	headerLen := 16
	for _, d := range dirs {
		headerLen += 1 + len(d.Name) + 16
		for _, f := range d.Files {
			headerLen += 1 + len(f.Name) + 16
		}
	}

	var buf, payload bytes.Buffer
	be := func(v int32) {
		_ = binary.Write(&buf, binary.BigEndian, v) //nolint:errcheck // bytes.Buffer writes cannot fail
	}
	name := func(s string) {
		if len(s) > 0xFF {
			tb.Fatalf("name %q too long", s)
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}

	be(int32(len(dirs))) //nolint:gosec // test inputs are small
	be(h.ID)
	be(0)
	be(h.Checksum)
	for _, d := range dirs {
		name(d.Name)
	}
	for _, d := range dirs {
		be(int32(len(d.Files))) //nolint:gosec // test inputs are small
		be(0)
		be(0)
		be(0)
		for _, f := range d.Files {
			offset := f.Offset
			if f.Stored != nil {
				offset = int32(headerLen + payload.Len()) //nolint:gosec // test inputs are small
				payload.Write(f.Stored)
			}
			name(f.Name)
			be(f.Attributes)
			be(offset)
			be(f.Size)
			be(f.PackedSize)
		}
	}
	if buf.Len() != headerLen {
		tb.Fatalf("header length %d, computed %d", buf.Len(), headerLen)
	}
	buf.Write(payload.Bytes())
	return buf.Bytes()
}

// Dat2File describes one record of a format-2 archive.
type Dat2File struct {
	Name       string
	Compressed bool
	// Size is the real_size field.
	Size uint32
	// Stored is placed in the payload region; its length becomes packed_size.
	// When nil, Offset and PackedSize are written as-is.
	Stored     []byte
	Offset     uint32
	PackedSize uint32
}

// PlainDat2 returns an uncompressed format-2 record.
func PlainDat2(name string, content []byte) Dat2File {
	return Dat2File{Name: name, Size: uint32(len(content)), Stored: content} //nolint:gosec // test inputs are small
}

// ZlibDat2 returns a zlib-compressed format-2 record.
func ZlibDat2(tb testing.TB, name string, content []byte) Dat2File {
	tb.Helper()
	return Dat2File{
		Name:       name,
		Compressed: true,
		Size:       uint32(len(content)), //nolint:gosec // test inputs are small
		Stored:     Zlib(tb, content),
	}
}

// BuildDat2 encodes files as a format-2 archive.
func BuildDat2(tb testing.TB, files []Dat2File) []byte {
	tb.Helper()
	return BuildDat2WithCount(tb, files, uint32(len(files))) //nolint:gosec // test inputs are small
}

// BuildDat2WithCount encodes files as a format-2 archive whose file_count
// field is count, which may disagree with len(files).
//
// The tree_size field covers file_count and the records, so the table read
// back by a parser also spans the 4-byte tree_size field itself.
func BuildDat2WithCount(tb testing.TB, files []Dat2File, count uint32) []byte {
	tb.Helper()
	return BuildDat2Padded(tb, files, count, 0)
}

// BuildDat2Padded is BuildDat2WithCount with padding zero bytes appended to
// the file table and counted in tree_size.
func BuildDat2Padded(tb testing.TB, files []Dat2File, count uint32, padding int) []byte {
	tb.Helper()

	var payload, records bytes.Buffer
	le := func(b *bytes.Buffer, v uint32) {
		_ = binary.Write(b, binary.LittleEndian, v) //nolint:errcheck // bytes.Buffer writes cannot fail
	}
	for _, f := range files {
		offset, packed := f.Offset, f.PackedSize
		if f.Stored != nil {
			offset = uint32(payload.Len()) //nolint:gosec // test inputs are small
			packed = uint32(len(f.Stored)) //nolint:gosec // test inputs are small
			payload.Write(f.Stored)
		}
		le(&records, uint32(len(f.Name))) //nolint:gosec // test inputs are small
		records.WriteString(f.Name)
		if f.Compressed {
			records.WriteByte(1)
		} else {
			records.WriteByte(0)
		}
		le(&records, f.Size)
		le(&records, packed)
		le(&records, offset)
	}
	records.Write(make([]byte, padding))

	var out bytes.Buffer
	out.Write(payload.Bytes())
	le(&out, count)
	out.Write(records.Bytes())
	treeSize := uint32(records.Len() + 4) //nolint:gosec // test inputs are small
	le(&out, treeSize)
	le(&out, uint32(out.Len()+4)) //nolint:gosec // test inputs are small
	return out.Bytes()
}

// Zlib compresses content with a zlib header, as format-2 archives store it.
func Zlib(tb testing.TB, content []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		tb.Fatalf("zlib.NewWriterLevel() error = %v", err)
	}
	if _, err := w.Write(content); err != nil {
		tb.Fatalf("zlib write error = %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("zlib close error = %v", err)
	}
	return buf.Bytes()
}

// Deflate compresses content as a headerless deflate stream.
func Deflate(tb testing.TB, content []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		tb.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := w.Write(content); err != nil {
		tb.Fatalf("flate write error = %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("flate close error = %v", err)
	}
	return buf.Bytes()
}
