package repository

import (
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

type RiskAssessmentRepository interface {
	WithQuerier(config.PgxIface) RiskAssessmentRepository

	GetById(uuid.UUID) (*domain.RiskAssessment, error)
	GetByEvidencePackAndModel(uuid.UUID, string) (*domain.RiskAssessment, error)
	Save(*domain.RiskAssessment) error
}
