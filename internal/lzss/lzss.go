// Package lzss decodes the LZSS variant used by format-1 archives.
//
// A stream is a sequence of records, each introduced by a signed big-endian
// 16-bit token n:
//   - n < 0: |n| literal bytes follow and are copied to the output.
//   - n > 0: a compressed block of n encoded bytes follows.
//   - n == 0: the stream is corrupt.
//
// Every compressed block starts with a fresh 4096-byte dictionary filled with
// spaces and a write cursor at 4096-18. Flag bytes are consumed LSB first:
// a set bit is a literal byte, a clear bit is a two-byte back-reference
// holding a 12-bit dictionary index and a 4-bit length (plus 3).
package lzss

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/dat/internal/dattype"
)

const (
	// DictSize is the size of the circular dictionary.
	DictSize = 4096

	// MaxMatch is the longest back-reference a block can encode.
	MaxMatch = 18

	// MinMatch is the shortest back-reference a block can encode.
	MinMatch = 3

	// fill is the byte the dictionary is reset to at each block.
	fill = ' '
)

// ErrCorruptBlock is returned for zero tokens and streams that end mid-record.
var ErrCorruptBlock = dattype.ErrCorruptBlock

// Decode decodes src and returns the produced bytes.
//
// sizeHint pre-sizes the output buffer; the output is not truncated or padded
// to it. Decoding ends when every byte of src has been consumed.
func Decode(src []byte, sizeHint int) ([]byte, error) {
	d := decoder{src: src, out: make([]byte, 0, max(sizeHint, 0))}
	if err := d.run(); err != nil {
		return nil, err
	}
	return d.out, nil
}

type decoder struct {
	src  []byte
	pos  int
	out  []byte
	dict [DictSize]byte
}

func (d *decoder) run() error {
	for d.pos < len(d.src) {
		if len(d.src)-d.pos < 2 {
			return fmt.Errorf("%w: truncated token at offset %d", ErrCorruptBlock, d.pos)
		}
		n := int(int16(binary.BigEndian.Uint16(d.src[d.pos:])))
		d.pos += 2

		switch {
		case n == 0:
			return fmt.Errorf("%w: zero token at offset %d", ErrCorruptBlock, d.pos-2)
		case n < 0:
			if err := d.literalRun(-n); err != nil {
				return err
			}
		default:
			if err := d.block(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// literalRun copies n raw bytes to the output.
func (d *decoder) literalRun(n int) error {
	if len(d.src)-d.pos < n {
		return fmt.Errorf("%w: literal run of %d bytes exceeds input", ErrCorruptBlock, n)
	}
	d.out = append(d.out, d.src[d.pos:d.pos+n]...)
	d.pos += n
	return nil
}

// block decodes one compressed block of n encoded bytes.
func (d *decoder) block(n int) error {
	for i := range d.dict {
		d.dict[i] = fill
	}
	cursor := DictSize - MaxMatch

	end := d.pos + n
	for d.pos < end {
		flags, err := d.byte()
		if err != nil {
			return err
		}
		for bit := 0; bit < 8 && d.pos < end; bit++ {
			if flags&1 != 0 {
				b, err := d.byte()
				if err != nil {
					return err
				}
				d.out = append(d.out, b)
				d.dict[cursor] = b
				cursor = (cursor + 1) % DictSize
			} else {
				lo, err := d.byte()
				if err != nil {
					return err
				}
				hi, err := d.byte()
				if err != nil {
					return err
				}
				index := int(lo) | int(hi&0xF0)<<4
				count := int(hi&0x0F) + MinMatch
				for range count {
					b := d.dict[index]
					d.out = append(d.out, b)
					d.dict[cursor] = b
					index = (index + 1) % DictSize
					cursor = (cursor + 1) % DictSize
				}
			}
			flags >>= 1
		}
	}
	return nil
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.src) {
		return 0, fmt.Errorf("%w: unexpected end of input", ErrCorruptBlock)
	}
	b := d.src[d.pos]
	d.pos++
	return b, nil
}
