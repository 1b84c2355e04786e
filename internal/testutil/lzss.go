package testutil

import "encoding/binary"

const (
	lzssDict      = 4096
	lzssMaxMatch  = 18
	lzssMinMatch  = 3
	lzssBlockSpan = 4096
)

// EncodeLZSS compresses data into the format-1 LZSS stream layout.
//
// Data is split into compressed blocks of at most 4096 input bytes. Each
// block restarts from an all-space dictionary, matching the decoder.
func EncodeLZSS(data []byte) []byte {
	var out []byte
	for start := 0; start < len(data); start += lzssBlockSpan {
		block := encodeLZSSBlock(data[start:min(start+lzssBlockSpan, len(data))])
		out = binary.BigEndian.AppendUint16(out, uint16(len(block))) //nolint:gosec // blocks stay far below 32 KiB
		out = append(out, block...)
	}
	return out
}

// LiteralRun encodes data as a single uncompressed LZSS record.
func LiteralRun(data []byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(-int16(len(data)))) //nolint:gosec // test inputs are small
	return append(out, data...)
}

func encodeLZSSBlock(chunk []byte) []byte {
	var dict [lzssDict]byte
	for i := range dict {
		dict[i] = ' '
	}
	cursor := lzssDict - lzssMaxMatch

	var out []byte
	pos := 0
	for pos < len(chunk) {
		flagAt := len(out)
		out = append(out, 0)
		var flags byte
		for bit := 0; bit < 8 && pos < len(chunk); bit++ {
			index, length := longestMatch(&dict, cursor, chunk[pos:])
			if length < lzssMinMatch {
				flags |= 1 << bit
				out = append(out, chunk[pos])
				dict[cursor] = chunk[pos]
				cursor = (cursor + 1) % lzssDict
				pos++
				continue
			}
			out = append(out, byte(index), byte((index>>8)<<4)|byte(length-lzssMinMatch))
			for range length {
				dict[cursor] = dict[index]
				index = (index + 1) % lzssDict
				cursor = (cursor + 1) % lzssDict
			}
			pos += length
		}
		out[flagAt] = flags
	}
	return out
}

// longestMatch finds the dictionary position reproducing the longest prefix
// of rest, accounting for bytes the copy itself writes at the cursor.
func longestMatch(dict *[lzssDict]byte, cursor int, rest []byte) (index, length int) {
	limit := min(lzssMaxMatch, len(rest))
	for i := range lzssDict {
		k := 0
		for k < limit {
			p := (i + k) % lzssDict
			b := dict[p]
			if d := (p - cursor + lzssDict) % lzssDict; d < k {
				b = rest[d]
			}
			if b != rest[k] {
				break
			}
			k++
		}
		if k > length {
			index, length = i, k
			if k == limit {
				break
			}
		}
	}
	return index, length
}

// ReferenceImage returns a deterministic frame-like bitmap used as an LZSS fixture.
//
// The header mimics a small frame file; the pixel area mixes flat runs,
// gradients and noise so that both literals and back-references occur.
func ReferenceImage() []byte {
	const width, height = 80, 72
	img := make([]byte, 0, 62+width*height)
	img = binary.BigEndian.AppendUint32(img, 4) // version
	img = binary.BigEndian.AppendUint16(img, 10)
	img = binary.BigEndian.AppendUint16(img, 0)
	img = binary.BigEndian.AppendUint16(img, 1)
	img = append(img, make([]byte, 52)...)
	img = binary.BigEndian.AppendUint16(img, width)
	img = binary.BigEndian.AppendUint16(img, height)

	seed := uint32(0x2545F491)
	for y := range height {
		for x := range width {
			var px byte
			switch {
			case y < 16:
				px = 0
			case y < 40:
				px = byte(x*3 + y)
			case x%9 == 0:
				seed ^= seed << 13
				seed ^= seed >> 17
				seed ^= seed << 5
				px = byte(seed)
			default:
				px = byte(0xE0 + (x/10)%8)
			}
			img = append(img, px)
		}
	}
	return img
}
