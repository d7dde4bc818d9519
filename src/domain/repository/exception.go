package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

type ExceptionRepository interface {
	WithQuerier(config.PgxIface) ExceptionRepository

	GetById(uuid.UUID) (*domain.Exception, error)
	GetByViolation(string) ([]domain.Exception, error)
	GetAll(*Page) ([]domain.Exception, error)
	Save(*domain.Exception) error
	// Revoke is one-way; guarded on revoked = false. Reports whether a
	// row actually changed.
	Revoke(uuid.UUID, string, time.Time) (bool, error)
}
