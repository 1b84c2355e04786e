package dat

import (
	"fmt"

	"github.com/meigma/dat/internal/lzss"
	"github.com/meigma/dat/internal/sizing"
)

// decode turns the stored bytes of entry into its content.
func (a *Archive) decode(entry FileEntry, stored []byte) ([]byte, error) {
	if !entry.Compressed {
		return stored, nil
	}
	size, err := sizing.ToInt(entry.Size, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}

	switch a.version {
	case VersionDat1:
		out, err := lzss.Decode(stored, size)
		if err != nil {
			return nil, err
		}
		if len(out) != size {
			if !a.legacySizes {
				return nil, fmt.Errorf("%w: lzss produced %d bytes, want %d", ErrSizeMismatch, len(out), size)
			}
			out = fit(out, size)
		}
		return out, nil

	case VersionDat2:
		res, err := a.pool.Decode(stored, size)
		if err != nil {
			return nil, err
		}
		switch {
		case res.Short && !a.legacySizes:
			return nil, fmt.Errorf("%w: inflated %d bytes, want %d", ErrTruncated, len(res.Data), size)
		case res.Long && !a.legacySizes:
			return nil, fmt.Errorf("%w: stream exceeds %d bytes", ErrSizeMismatch, size)
		}
		return fit(res.Data, size), nil

	default:
		return nil, fmt.Errorf("%w: unknown archive version", ErrInvalidSignature)
	}
}

// fit zero-pads or truncates b to exactly size bytes.
func fit(b []byte, size int) []byte {
	if len(b) >= size {
		return b[:size]
	}
	if cap(b) >= size {
		tail := b[len(b):size]
		clear(tail)
		return b[:size]
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}
