package format

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/meigma/dat/internal/dattype"
	"github.com/meigma/dat/tree"
)

// attrUncompressed marks a format-1 record whose bytes are stored as-is.
const attrUncompressed = 0x20

// dat1Record is the fixed-width tail of a format-1 file record.
type dat1Record struct {
	Attributes int32
	Offset     int32
	Size       int32
	PackedSize int32
}

// dirHeader precedes the file records of each directory.
type dirHeader struct {
	FileCount int32
	Reserved  [3]int32
}

// ParseDat1 reads the format-1 directory table following h from r.
//
// r must be positioned just after the header returned by Detect. Entries are
// inserted unsorted and the tree is sorted once at the end.
func ParseDat1(r io.Reader, h Header, t *tree.FileTree) (Info, error) {
	if h.DirCount < 0 {
		return Info{}, fmt.Errorf("%w: negative directory count %d", dattype.ErrInvalidSignature, h.DirCount)
	}
	br := bufio.NewReader(r)
	info := Info{Version: dattype.VersionDat1}
	if err := readBE(br, &info.Checksum); err != nil {
		return Info{}, fmt.Errorf("dat1 checksum: %w", err)
	}

	dirs := make([]string, 0, min(int(h.DirCount), 256))
	for i := range h.DirCount {
		name, err := readName(br)
		if err != nil {
			return Info{}, fmt.Errorf("dat1 directory %d: %w", i, err)
		}
		dirs = append(dirs, name)
	}

	for _, dir := range dirs {
		var dh dirHeader
		if err := readBE(br, &dh); err != nil {
			return Info{}, fmt.Errorf("dat1 directory %q: %w", dir, err)
		}
		if dh.FileCount < 0 {
			return Info{}, fmt.Errorf("%w: directory %q has negative file count %d",
				dattype.ErrInvalidSignature, dir, dh.FileCount)
		}
		for range dh.FileCount {
			if err := readDat1File(br, dir, t); err != nil {
				return Info{}, err
			}
			info.Files++
		}
	}

	if err := t.Sort(); err != nil {
		return Info{}, err
	}
	return info, nil
}

func readDat1File(br *bufio.Reader, dir string, t *tree.FileTree) error {
	name, err := readName(br)
	if err != nil {
		return fmt.Errorf("dat1 file in %q: %w", dir, err)
	}
	var rec dat1Record
	if err := readBE(br, &rec); err != nil {
		return fmt.Errorf("dat1 file %q: %w", name, err)
	}
	if rec.Offset < 0 || rec.Size < 0 || rec.PackedSize < 0 {
		return fmt.Errorf("%w: file %q has negative offset or size", dattype.ErrInvalidSignature, name)
	}

	entry := tree.FileEntry{
		Offset: uint64(rec.Offset),
		Size:   uint64(rec.Size),
	}
	if rec.PackedSize != 0 && rec.Attributes&attrUncompressed == 0 {
		entry.Compressed = true
		entry.PackedSize = uint64(rec.PackedSize)
	}

	path := name
	if dir != "." {
		path = dir + `\` + name
	}
	if _, err := t.InsertUnsorted(strings.ToLower(path), entry); err != nil {
		return fmt.Errorf("dat1 file %q: %w", path, err)
	}
	return nil
}

// readName reads a u8 length-prefixed UTF-8 string.
func readName(br *bufio.Reader) (string, error) {
	n, err := br.ReadByte()
	if err != nil {
		return "", readErr(err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", readErr(err)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: %q", dattype.ErrInvalidName, buf)
	}
	return string(buf), nil
}
