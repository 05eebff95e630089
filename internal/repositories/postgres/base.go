package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/the127/resumable/internal/repositories"
)

type postgresBaseModel struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
	xmin      uint32
}

func newPostgresBaseModel(base repositories.BaseModel) postgresBaseModel {
	xmin, _ := base.GetVersion().(uint32)
	return postgresBaseModel{
		id:        base.GetId(),
		createdAt: base.GetCreatedAt(),
		updatedAt: base.GetUpdatedAt(),
		xmin:      xmin,
	}
}

func (b *postgresBaseModel) MapBase() repositories.BaseModel {
	return repositories.NewBaseModelFromDB(b.id, b.createdAt, b.updatedAt, b.xmin)
}
