package storage

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type BuffersTestSuite struct {
	suite.Suite
}

func TestBuffersTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(BuffersTestSuite))
}

func (s *BuffersTestSuite) TestTotalBytes() {
	// arrange
	buffers := NewConstBufferSequence([]byte("abc"), nil, []byte("defgh"))

	// act
	total := buffers.TotalBytes()

	// assert
	s.Equal(uint64(8), total)
}

func (s *BuffersTestSuite) TestPopFrontBytesInsideFirstBuffer() {
	// arrange
	buffers := NewConstBufferSequence([]byte("abc"), []byte("defgh"))

	// act
	rest := buffers.PopFrontBytes(2)

	// assert
	s.Equal("cdefgh", string(rest.Bytes()))
	s.Equal("abc", string(buffers[0]))
}

func (s *BuffersTestSuite) TestPopFrontBytesAcrossBuffers() {
	// arrange
	buffers := NewConstBufferSequence([]byte("abc"), []byte("defgh"), []byte("ij"))

	// act
	rest := buffers.PopFrontBytes(5)

	// assert
	s.Equal("fghij", string(rest.Bytes()))
	s.Len(rest, 2)
}

func (s *BuffersTestSuite) TestPopFrontBytesExactBoundary() {
	// arrange
	buffers := NewConstBufferSequence([]byte("abc"), []byte("def"))

	// act
	rest := buffers.PopFrontBytes(3)

	// assert
	s.Equal("def", string(rest.Bytes()))
}

func (s *BuffersTestSuite) TestPopFrontBytesEverything() {
	// arrange
	buffers := NewConstBufferSequence([]byte("abc"))

	// act
	rest := buffers.PopFrontBytes(10)

	// assert
	s.Empty(rest)
	s.Equal(uint64(0), rest.TotalBytes())
}
