package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

type ApprovalRepository interface {
	WithQuerier(config.PgxIface) ApprovalRepository

	GetById(uuid.UUID) (*domain.CABApproval, error)
	// GetByIdForUpdate takes a row lock; call it inside a transaction.
	GetByIdForUpdate(uuid.UUID) (*domain.CABApproval, error)
	GetLatestByEvidencePackId(uuid.UUID) (*domain.CABApproval, error)
	GetOpenByIntentAndPack(uuid.UUID, uuid.UUID) (*domain.CABApproval, error)
	GetAll(*Page) ([]domain.CABApproval, error)
	Save(*domain.CABApproval) error
	// MarkUnderReview transitions pending → under_review; reports whether
	// a row actually changed.
	MarkUnderReview(uuid.UUID, string) (bool, error)
	// Decide writes the terminal status and conditions. The update is
	// guarded on status = under_review; reports whether a row changed.
	Decide(*domain.CABApproval, time.Time) (bool, error)
}
