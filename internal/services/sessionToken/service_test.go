package sessionToken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/the127/resumable/internal/services/clock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type SessionTokenTestSuite struct {
	suite.Suite
}

func TestSessionTokenTestSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(SessionTokenTestSuite))
}

func (s *SessionTokenTestSuite) TestRoundTrip() {
	// arrange
	clockService, _ := clock.NewMockServiceNow()
	service := NewService("secret", time.Hour, clockService)
	id := uuid.New()

	// act
	token, err := service.Issue(id)
	s.Require().NoError(err)
	parsed, err := service.Parse(token)

	// assert
	s.Require().NoError(err)
	s.Equal(id, parsed)
}

func (s *SessionTokenTestSuite) TestExpiredToken() {
	// arrange
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clockService, setTime := clock.NewMockService(now)
	service := NewService("secret", time.Hour, clockService)
	token, err := service.Issue(uuid.New())
	s.Require().NoError(err)
	setTime(now.Add(2 * time.Hour))

	// act
	_, err = service.Parse(token)

	// assert
	s.Equal(codes.NotFound, status.Code(err))
	s.Contains(err.Error(), "expired")
}

func (s *SessionTokenTestSuite) TestForeignSignature() {
	// arrange
	clockService, _ := clock.NewMockServiceNow()
	token, err := NewService("other", time.Hour, clockService).Issue(uuid.New())
	s.Require().NoError(err)

	// act
	_, err = NewService("secret", time.Hour, clockService).Parse(token)

	// assert
	s.Equal(codes.NotFound, status.Code(err))
}

func (s *SessionTokenTestSuite) TestGarbage() {
	// arrange
	clockService, _ := clock.NewMockServiceNow()
	service := NewService("secret", time.Hour, clockService)

	// act
	_, err := service.Parse("not-a-token")

	// assert
	s.Equal(codes.NotFound, status.Code(err))
}
