package dockerio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceChunkSource struct {
	chunks [][]byte
	i      int
}

func (s *sliceChunkSource) Next() ([]byte, error) {
	if s.i >= len(s.chunks) {
		return nil, nil
	}
	c := s.chunks[s.i]
	s.i++
	return c, nil
}

func TestChunkReader_ReassemblesChunks(t *testing.T) {
	src := &sliceChunkSource{chunks: [][]byte{[]byte("hel"), []byte("lo "), []byte("world")}}
	r := NewChunkReader(src)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestChunkReader_PropagatesSourceError(t *testing.T) {
	boom := assertError("boom")
	src := FuncChunkSource(func() ([]byte, error) { return nil, boom })
	r := NewChunkReader(src)

	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, boom)
}

func TestFromReader_ChunksUnderlyingReader(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 10)
	src := FromReader(bytes.NewReader(data), 3)
	r := NewChunkReader(src)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

type assertError string

func (e assertError) Error() string { return string(e) }
