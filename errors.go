package dat

import "github.com/meigma/dat/internal/dattype"

// Sentinel errors re-exported from internal/dattype.
var (
	// ErrInvalidSignature is returned when the archive layout markers are inconsistent.
	ErrInvalidSignature = dattype.ErrInvalidSignature

	// ErrRead is returned when the archive stream ends early or fails.
	ErrRead = dattype.ErrRead

	// ErrInvalidName is returned when an entry name is not valid UTF-8.
	ErrInvalidName = dattype.ErrInvalidName

	// ErrCorruptBlock is returned when LZSS data is malformed.
	ErrCorruptBlock = dattype.ErrCorruptBlock

	// ErrDecompression is returned when deflate data is malformed.
	ErrDecompression = dattype.ErrDecompression

	// ErrSizeMismatch is returned when decoded content is longer or shorter
	// than the entry declares.
	ErrSizeMismatch = dattype.ErrSizeMismatch

	// ErrTruncated is returned when a deflate stream ends before the declared size.
	ErrTruncated = dattype.ErrTruncated

	// ErrSizeOverflow is returned when an entry exceeds the configured size limit.
	ErrSizeOverflow = dattype.ErrSizeOverflow

	// ErrTree is returned when the entry tree cannot be mutated.
	ErrTree = dattype.ErrTree

	// ErrTreeNode is returned when a path walks through a file.
	ErrTreeNode = dattype.ErrTreeNode
)
