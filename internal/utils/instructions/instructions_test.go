package instructions

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type InstructionsTestSuite struct {
	suite.Suite
}

func TestInstructionsTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(InstructionsTestSuite))
}

func (s *InstructionsTestSuite) TestParsesAllKinds() {
	// arrange
	header := "return-503-after-256K, return-308-without-range,return-broken-stream-after-10"

	// act
	result, err := Parse(header)

	// assert
	s.Require().NoError(err)
	s.Equal([]Instruction{
		{Kind: Return503After, Bytes: 256 * 1024},
		{Kind: Return308WithoutRange},
		{Kind: ReturnBrokenStreamAfter, Bytes: 10},
	}, result)
}

func (s *InstructionsTestSuite) TestMegabyteSuffix() {
	// arrange
	header := "return-503-after-2M"

	// act
	result, err := Parse(header)

	// assert
	s.Require().NoError(err)
	s.Equal(int64(2*1024*1024), result[0].Bytes)
}

func (s *InstructionsTestSuite) TestEmptyHeader() {
	// act
	result, err := Parse("", " ")

	// assert
	s.NoError(err)
	s.Empty(result)
}

func (s *InstructionsTestSuite) TestUnknownInstruction() {
	// act
	_, err := Parse("return-418")

	// assert
	s.Equal(codes.InvalidArgument, status.Code(err))
}

func (s *InstructionsTestSuite) TestStringRoundTrip() {
	// arrange
	original := []Instruction{
		{Kind: Return503After, Bytes: 5},
		{Kind: Return308WithoutRange},
	}

	// act
	result, err := Parse(original[0].String(), original[1].String())

	// assert
	s.Require().NoError(err)
	s.Equal(original, result)
}

func (s *InstructionsTestSuite) TestFind() {
	// arrange
	list := []Instruction{{Kind: Return308WithoutRange}, {Kind: Return503After, Bytes: 3}}

	// act
	found, ok := Find(list, Return503After)
	_, missing := Find(list, ReturnBrokenStreamAfter)

	// assert
	s.True(ok)
	s.Equal(int64(3), found.Bytes)
	s.False(missing)
}
