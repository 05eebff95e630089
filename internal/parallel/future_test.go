package parallel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type FutureTestSuite struct {
	suite.Suite
}

func TestFutureTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(FutureTestSuite))
}

func (s *FutureTestSuite) TestResolveOnce() {
	// arrange
	f := newFuture[int]()

	// act
	first := f.resolve(1, nil)
	second := f.resolve(2, nil)
	value, err := f.wait(context.Background())

	// assert
	s.True(first)
	s.False(second)
	s.NoError(err)
	s.Equal(1, value)
}

func (s *FutureTestSuite) TestThenAfterResolveRunsImmediately() {
	// arrange
	f := newFuture[string]()
	f.resolve("done", nil)
	var got string

	// act
	f.then(func(value string, _ error) { got = value })

	// assert
	s.Equal("done", got)
}

func (s *FutureTestSuite) TestWhenAllWaitsForEveryInput() {
	// arrange
	futures := []*future[int]{newFuture[int](), newFuture[int](), newFuture[int]()}
	all := whenAll(futures)

	// act
	futures[2].resolve(3, nil)
	futures[0].resolve(1, nil)
	readyEarly := all.ready()
	futures[1].resolve(2, nil)
	values, err := all.wait(context.Background())

	// assert
	s.False(readyEarly)
	s.NoError(err)
	s.Equal([]int{1, 2, 3}, values)
}

func (s *FutureTestSuite) TestWhenAllKeepsFirstErrorByArrival() {
	// arrange
	futures := []*future[int]{newFuture[int](), newFuture[int]()}
	all := whenAll(futures)
	first := errors.New("first")

	// act
	futures[1].resolve(0, first)
	futures[0].resolve(0, errors.New("second"))
	_, err := all.wait(context.Background())

	// assert
	s.Equal(first, err)
}

func (s *FutureTestSuite) TestWaitHonorsContext() {
	// arrange
	f := newFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	// act
	_, err := f.wait(ctx)

	// assert
	s.ErrorIs(err, context.DeadlineExceeded)
}
