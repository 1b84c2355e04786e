// Package inflate decodes the deflate payloads of format-2 archives.
//
// Payloads are usually zlib streams; headerless deflate is accepted too.
// Decoders are pooled so that bulk extraction does not allocate a fresh
// window per entry.
package inflate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/meigma/dat/internal/dattype"
)

// ErrDecompression is returned when a stream cannot be decoded.
var ErrDecompression = dattype.ErrDecompression

// Pool manages reusable zlib and flate decoders.
// A Pool is safe for concurrent use.
type Pool struct {
	zlibPool  sync.Pool
	flatePool sync.Pool
}

// NewPool creates an empty decoder pool.
func NewPool() *Pool {
	return &Pool{}
}

// Result is the outcome of decoding one payload.
type Result struct {
	// Data holds the decoded bytes. Its length is the number of bytes the
	// stream produced, at most the declared size.
	Data []byte

	// Short is set when the stream ended before the declared size.
	Short bool

	// Long is set when the stream holds more than the declared size.
	// Data is then cut at the declared size.
	Long bool
}

// Decode inflates src into a buffer of size bytes.
//
// A stream producing fewer or more than size bytes is reported through
// Result.Short or Result.Long so the caller can decide.
func (p *Pool) Decode(src []byte, size int) (Result, error) {
	r, release, err := p.get(src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer release()

	out := make([]byte, size)
	n, err := io.ReadFull(r, out)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Result{Data: out[:n], Short: true}, nil
	case err != nil:
		return Result{}, fmt.Errorf("%w: %v", ErrDecompression, err)
	}

	var extra [1]byte
	m, err := r.Read(extra[:])
	if m > 0 {
		return Result{Data: out, Long: true}, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return Result{Data: out}, nil
}

// get returns a decoder reading from src and a function returning it to the pool.
func (p *Pool) get(src []byte) (io.Reader, func(), error) {
	br := bytes.NewReader(src)
	if hasZlibHeader(src) {
		return reuse(&p.zlibPool, br, func() (io.ReadCloser, error) { return zlib.NewReader(br) })
	}
	return reuse(&p.flatePool, br, func() (io.ReadCloser, error) { return flate.NewReader(br), nil })
}

// resetter is implemented by both zlib and flate decoders.
type resetter interface {
	Reset(r io.Reader, dict []byte) error
}

func reuse(pool *sync.Pool, br *bytes.Reader, create func() (io.ReadCloser, error)) (io.Reader, func(), error) {
	if dec, ok := pool.Get().(io.ReadCloser); ok {
		if rs, ok := dec.(resetter); ok && rs.Reset(br, nil) == nil {
			return dec, func() { pool.Put(dec) }, nil
		}
	}
	dec, err := create()
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { pool.Put(dec) }, nil
}

// hasZlibHeader reports whether src starts with a valid zlib CMF/FLG pair
// declaring deflate with a window of at most 32 KiB.
func hasZlibHeader(src []byte) bool {
	if len(src) < 2 {
		return false
	}
	cmf, flg := src[0], src[1]
	if cmf&0x0F != 8 || cmf>>4 > 7 {
		return false
	}
	return (uint16(cmf)<<8|uint16(flg))%31 == 0
}
