package dattype

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrInvalidSignature is returned when the archive header or trailer
	// describes a layout that cannot exist.
	ErrInvalidSignature = errors.New("dat: invalid signature")

	// ErrRead is returned when the archive stream ends early or fails.
	ErrRead = errors.New("dat: read error")

	// ErrInvalidName is returned when an entry or directory name is not valid UTF-8.
	ErrInvalidName = errors.New("dat: invalid name")

	// ErrCorruptBlock is returned when an LZSS stream is malformed.
	ErrCorruptBlock = errors.New("dat: corrupt lzss block")

	// ErrDecompression is returned when a deflate stream cannot be decoded.
	ErrDecompression = errors.New("dat: decompression failed")

	// ErrSizeMismatch is returned when decoded content does not have the declared size.
	ErrSizeMismatch = errors.New("dat: decoded size mismatch")

	// ErrTruncated is returned when a deflate stream ends before the declared size.
	ErrTruncated = errors.New("dat: truncated output")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("dat: size overflow")

	// ErrTree is returned when the tree cannot be mutated.
	ErrTree = errors.New("dat: tree error")

	// ErrTreeNode is returned when an operation targets the wrong node kind.
	ErrTreeNode = errors.New("dat: incorrect node type")
)
