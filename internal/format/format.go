// Package format detects and parses the two DAT archive layouts into a
// tree.FileTree.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/dat/internal/dattype"
	"github.com/meigma/dat/tree"
)

// Format-1 identifiers found in the second header word.
const (
	dat1IDFallout1 = 0x0A
	dat1IDAlt      = 0x5E
)

// Header is the leading twelve bytes of an archive interpreted as format 1.
// For format-2 archives the values carry no meaning.
type Header struct {
	DirCount int32
	ID       int32
	Zero     int32
}

// IsDat1 reports whether the header identifies a format-1 archive.
func (h Header) IsDat1() bool {
	return h.DirCount > 0 && (h.ID == dat1IDFallout1 || h.ID == dat1IDAlt) && h.Zero == 0
}

// Info summarizes a parsed archive.
type Info struct {
	Version dattype.Version

	// Checksum is the format-1 header checksum. It is recorded, not verified.
	Checksum int32

	// Files is the number of file records read.
	Files int
}

// Detect reads the twelve header bytes from r and returns the archive version.
// r is left positioned just after them.
func Detect(r io.Reader) (dattype.Version, Header, error) {
	var h Header
	if err := readBE(r, &h); err != nil {
		return dattype.VersionUnknown, Header{}, fmt.Errorf("detect: %w", err)
	}
	if h.IsDat1() {
		return dattype.VersionDat1, h, nil
	}
	return dattype.VersionDat2, h, nil
}

// Parse detects the archive version, fills t with every file record and
// sorts it. r must be positioned at the start of the archive.
func Parse(r io.ReadSeeker, t *tree.FileTree) (Info, error) {
	version, h, err := Detect(r)
	if err != nil {
		return Info{}, err
	}
	switch version {
	case dattype.VersionDat1:
		return ParseDat1(r, h, t)
	default:
		return ParseDat2(r, t)
	}
}

func readBE(r io.Reader, v any) error {
	if err := binary.Read(r, binary.BigEndian, v); err != nil {
		return readErr(err)
	}
	return nil
}

// readErr maps a failed read of archive metadata to ErrRead.
func readErr(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", dattype.ErrRead, err)
}
