package storage

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type HeadersTestSuite struct {
	suite.Suite
}

func TestHeadersTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(HeadersTestSuite))
}

func (s *HeadersTestSuite) TestHashHeaderRoundTrip() {
	// arrange
	hashes := HashValues{Crc32c: "AAAAAA==", Md5: "1B2M2Y8AsgTpgAmY7PhCfg=="}

	// act
	parsed := ParseHashHeader([]string{FormatHashHeader(hashes)})

	// assert
	s.Equal(hashes, parsed)
}

func (s *HeadersTestSuite) TestHashHeaderAcrossValues() {
	// act
	parsed := ParseHashHeader([]string{"crc32c=abc", "md5=def", "sha1=x"})

	// assert
	s.Equal(HashValues{Crc32c: "abc", Md5: "def"}, parsed)
}

func (s *HeadersTestSuite) TestContentRangeForms() {
	// arrange
	cases := map[string]string{
		"bytes 0-9/*":    "bytes 0-9/*",
		"bytes 10-19/20": "bytes 10-19/20",
		"bytes */20":     "bytes */20",
		"bytes */*":      "bytes */*",
	}

	for header, expected := range cases {
		// act
		parsed, err := ParseContentRange(header)

		// assert
		s.Require().NoError(err, header)
		s.Equal(expected, parsed.String())
	}
}

func (s *HeadersTestSuite) TestInvalidContentRange() {
	for _, header := range []string{"", "0-9/*", "bytes 9-0/*", "bytes 0-9", "bytes a-b/*", "bytes 0-9/x"} {
		// act
		_, err := ParseContentRange(header)

		// assert
		s.Error(err, header)
	}
}

func (s *HeadersTestSuite) TestCommittedRange() {
	// act
	committed, ok := ParseCommittedRange("bytes=0-262143")
	_, missing := ParseCommittedRange("")
	_, offset := ParseCommittedRange("bytes=5-9")

	// assert
	s.True(ok)
	s.Equal(uint64(262144), committed)
	s.False(missing)
	s.False(offset)
}
