package repository

import (
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

type TaskRepository interface {
	WithQuerier(config.PgxIface) TaskRepository

	GetById(uuid.UUID) (*domain.Task, error)
	GetOpenByKindAndSubject(domain.TaskKind, uuid.UUID) (*domain.Task, error)
	Save(*domain.Task) error
	// Claim atomically moves one pending task to running, skipping rows
	// locked by other workers. Nil when no task is pending.
	Claim(domain.TaskKind) (*domain.Task, error)
	Finish(*domain.Task) error
}
