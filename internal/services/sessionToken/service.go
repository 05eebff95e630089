package sessionToken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/the127/resumable/internal/services/clock"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

const issuer = "resumable-emulator"

// Service turns upload session ids into the opaque upload_id handed out in
// session URLs and back.
type Service interface {
	Issue(sessionId uuid.UUID) (string, error)
	Parse(token string) (uuid.UUID, error)
}

type claims struct {
	jwt.RegisteredClaims
	SessionId uuid.UUID `json:"sid"`
}

type service struct {
	key        []byte
	expiration time.Duration
	clock      clock.Service
}

func NewService(signingKey string, expiration time.Duration, clockService clock.Service) Service {
	return &service{
		key:        []byte(signingKey),
		expiration: expiration,
		clock:      clockService,
	}
}

func (s *service) Issue(sessionId uuid.UUID) (string, error) {
	now := s.clock.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
		SessionId: sessionId,
	})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing upload id: %w", err)
	}

	return signed, nil
}

func (s *service) Parse(token string) (uuid.UUID, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.clock.Now),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return uuid.Nil, storageError.NewStorageError(codes.NotFound).WithMessage("upload session expired")

	case err != nil:
		return uuid.Nil, storageError.NewStorageError(codes.NotFound).WithMessagef("invalid upload id: %v", err)
	}

	return parsed.SessionId, nil
}
