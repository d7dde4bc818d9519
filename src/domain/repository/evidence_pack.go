package repository

import (
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

// EvidencePackRepository has no update or delete: packs are immutable and
// retention is an out-of-scope archival concern.
type EvidencePackRepository interface {
	WithQuerier(config.PgxIface) EvidencePackRepository

	GetById(uuid.UUID) (*domain.EvidencePack, error)
	GetByCorrelationId(uuid.UUID) (*domain.EvidencePack, error)
	Save(*domain.EvidencePack) error
}
