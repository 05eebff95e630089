package database

import (
	"context"

	"github.com/the127/resumable/internal/repositories"
)

const (
	ObjectType int = iota
)

// Context reads through its repositories and buffers writes until
// SaveChanges applies them in a single transaction.
type Context interface {
	Objects() repositories.ObjectRepository

	SaveChanges(ctx context.Context) error
}
