// Package dockerio adapts Docker SDK archive streams into plain
// io.Readers over a source of byte chunks.
package dockerio

import "io"

// ChunkSource supplies successive byte chunks, e.g. the body of a
// get_archive response or a chunked HTTP download. A nil chunk with a nil
// error signals end of stream, matching how the original coroutine
// yielded until exhausted.
type ChunkSource interface {
	Next() (chunk []byte, err error)
}

// ChunkReader buffers ChunkSource output behind a standard io.Reader,
// so callers can hand it straight to tar.NewReader or io.Copy instead of
// reimplementing chunk bookkeeping at every call site.
type ChunkReader struct {
	src   ChunkSource
	buf   []byte
	done  bool
	erred error
}

// NewChunkReader wraps src.
func NewChunkReader(src ChunkSource) *ChunkReader {
	return &ChunkReader{src: src}
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.done {
			if r.erred != nil {
				return 0, r.erred
			}
			return 0, io.EOF
		}
		chunk, err := r.src.Next()
		if err != nil {
			r.done = true
			r.erred = err
			continue
		}
		if chunk == nil {
			r.done = true
			continue
		}
		r.buf = chunk
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// FuncChunkSource adapts a plain function to ChunkSource, for callers
// that already have a closure-based iterator (e.g. over a Docker SDK
// response body read in fixed-size chunks).
type FuncChunkSource func() ([]byte, error)

func (f FuncChunkSource) Next() ([]byte, error) { return f() }

// FromReader builds a ChunkSource that reads fixed-size chunks from an
// underlying io.Reader, useful for turning an http/docker response body
// into the same chunked shape tests exercise against ChunkReader.
func FromReader(r io.Reader, chunkSize int) ChunkSource {
	return FuncChunkSource(func() ([]byte, error) {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return nil, nil
	})
}
