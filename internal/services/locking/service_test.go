package locking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type LockingServiceTestSuite struct {
	suite.Suite
	service Service
}

func TestLockingServiceTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(LockingServiceTestSuite))
}

func (s *LockingServiceTestSuite) SetupTest() {
	s.service = NewService()
}

func (s *LockingServiceTestSuite) TestSameKeyIsExclusive() {
	// arrange
	ctx := context.Background()
	counter := 0
	wg := sync.WaitGroup{}

	// act
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := s.service.Lock(ctx, "bucket/object")
			if err != nil {
				return
			}
			defer unlock()

			value := counter
			time.Sleep(time.Microsecond)
			counter = value + 1
		}()
	}
	wg.Wait()

	// assert
	s.Equal(50, counter)
}

func (s *LockingServiceTestSuite) TestDifferentKeysDoNotBlock() {
	// arrange
	ctx := context.Background()
	unlock, err := s.service.Lock(ctx, "a")
	s.Require().NoError(err)
	defer unlock()

	// act
	other, err := s.service.Lock(ctx, "b")

	// assert
	s.Require().NoError(err)
	other()
}

func (s *LockingServiceTestSuite) TestWaitingHonorsContext() {
	// arrange
	unlock, err := s.service.Lock(context.Background(), "a")
	s.Require().NoError(err)
	defer unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// act
	_, err = s.service.Lock(ctx, "a")

	// assert
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *LockingServiceTestSuite) TestUnlockIsIdempotent() {
	// arrange
	ctx := context.Background()
	unlock, err := s.service.Lock(ctx, "a")
	s.Require().NoError(err)

	// act
	unlock()
	unlock()
	again, err := s.service.Lock(ctx, "a")

	// assert
	s.Require().NoError(err)
	again()
}
