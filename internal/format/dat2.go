package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/meigma/dat/internal/dattype"
	"github.com/meigma/dat/tree"
)

const (
	trailerSize = 8
	// recordFixed is the size of a format-2 record without its name.
	recordFixed = 4 + 1 + 4 + 4 + 4
)

// ParseDat2 reads the format-2 trailer and file table from r.
//
// The table is read in one piece and parsed up to its declared file count.
// A table that ends early, including mid-record, ends parsing without error.
func ParseDat2(r io.ReadSeeker, t *tree.FileTree) (Info, error) {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return Info{}, readErr(err)
	}
	if end < trailerSize {
		return Info{}, fmt.Errorf("%w: archive too small (%d bytes)", dattype.ErrInvalidSignature, end)
	}
	if _, err := r.Seek(end-trailerSize, io.SeekStart); err != nil {
		return Info{}, readErr(err)
	}
	var trailer struct {
		TreeSize uint32
		DataSize uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &trailer); err != nil {
		return Info{}, fmt.Errorf("dat2 trailer: %w", readErr(err))
	}

	treeSize := int64(trailer.TreeSize)
	treeStart := int64(trailer.DataSize) - treeSize - 4
	if treeStart < 4 || treeStart+treeSize > end {
		return Info{}, fmt.Errorf("%w: tree size %d and data size %d do not fit a %d byte archive",
			dattype.ErrInvalidSignature, trailer.TreeSize, trailer.DataSize, end)
	}

	if _, err := r.Seek(treeStart-4, io.SeekStart); err != nil {
		return Info{}, readErr(err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return Info{}, fmt.Errorf("dat2 file count: %w", readErr(err))
	}
	table := make([]byte, treeSize)
	if _, err := io.ReadFull(r, table); err != nil {
		return Info{}, fmt.Errorf("dat2 file table: %w", readErr(err))
	}

	info := Info{Version: dattype.VersionDat2}
	for range count {
		rec, n, ok := nextRecord(table)
		if !ok || len(rec.name) == 0 {
			// Zero padding after the last record ends the table.
			break
		}
		table = table[n:]
		if !utf8.Valid(rec.name) {
			return Info{}, fmt.Errorf("%w: %q", dattype.ErrInvalidName, rec.name)
		}
		path := strings.ToLower(string(rec.name))
		if _, err := t.InsertUnsorted(path, rec.entry()); err != nil {
			return Info{}, fmt.Errorf("dat2 file %q: %w", path, err)
		}
		info.Files++
	}

	if err := t.Sort(); err != nil {
		return Info{}, err
	}
	return info, nil
}

type dat2Record struct {
	name       []byte
	kind       byte
	size       uint32
	packedSize uint32
	offset     uint32
}

func (rec dat2Record) entry() tree.FileEntry {
	e := tree.FileEntry{
		Offset: uint64(rec.offset),
		Size:   uint64(rec.size),
	}
	if rec.kind != 0 {
		e.Compressed = true
		e.PackedSize = uint64(rec.packedSize)
	}
	return e
}

// nextRecord decodes the record at the start of buf and returns its length.
// ok is false when buf does not hold a complete record.
func nextRecord(buf []byte) (dat2Record, int, bool) {
	if len(buf) < 4 {
		return dat2Record{}, 0, false
	}
	nameLen := uint64(binary.LittleEndian.Uint32(buf))
	if nameLen+recordFixed > uint64(len(buf)) {
		return dat2Record{}, 0, false
	}
	n := int(nameLen)
	rest := buf[4+n:]
	rec := dat2Record{
		name:       buf[4 : 4+n],
		kind:       rest[0],
		size:       binary.LittleEndian.Uint32(rest[1:]),
		packedSize: binary.LittleEndian.Uint32(rest[5:]),
		offset:     binary.LittleEndian.Uint32(rest[9:]),
	}
	return rec, n + recordFixed, true
}
