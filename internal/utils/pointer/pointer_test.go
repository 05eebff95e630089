package pointer

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type committedSize struct {
	value uint64
}

type PointerTestSuite struct {
	suite.Suite
}

func TestPointerTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PointerTestSuite))
}

func (s *PointerTestSuite) TestToInt() {
	// arrange
	var v uint64 = 42

	// act
	actual := To(v)

	// assert
	s.Equal(v, *actual)
}

func (s *PointerTestSuite) TestToStruct() {
	// arrange
	v := committedSize{value: 7}

	// act
	actual := To(v)

	// assert
	s.Equal(v, *actual)
}

func (s *PointerTestSuite) TestDerefOrZeroNonNil() {
	// arrange
	value := "gunzipped"

	// act
	actual := DerefOrZero(&value)

	// assert
	s.Equal(value, actual)
}

func (s *PointerTestSuite) TestDerefOrZeroNil() {
	// arrange
	var ptr *committedSize

	// act
	actual := DerefOrZero(ptr)

	// assert
	s.Equal(committedSize{}, actual)
}

func (s *PointerTestSuite) TestCloneIsIndependent() {
	// arrange
	original := To(int64(3))

	// act
	clone := Clone(original)
	*clone = 4

	// assert
	s.Equal(int64(3), *original)
	s.Equal(int64(4), *clone)
}

func (s *PointerTestSuite) TestCloneNil() {
	// arrange
	var ptr *int64

	// act
	clone := Clone(ptr)

	// assert
	s.Nil(clone)
}
