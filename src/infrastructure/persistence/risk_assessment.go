package persistence

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
)

type riskAssessmentRepository struct {
	db config.PgxIface
}

func NewRiskAssessmentRepository(db config.PgxIface) repository.RiskAssessmentRepository {
	return &riskAssessmentRepository{db}
}

func (self *riskAssessmentRepository) WithQuerier(querier config.PgxIface) repository.RiskAssessmentRepository {
	return &riskAssessmentRepository{querier}
}

const riskAssessmentColumns = `id, correlation_id, evidence_pack_id, model_version, factors, total, requires_review, created_at`

func (self *riskAssessmentRepository) GetById(id uuid.UUID) (*domain.RiskAssessment, error) {
	assessment := domain.RiskAssessment{}
	err := pgxscan.Get(
		context.Background(), self.db, &assessment,
		`SELECT `+riskAssessmentColumns+` FROM risk_assessment WHERE id = $1`,
		id,
	)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &assessment, err
}

func (self *riskAssessmentRepository) GetByEvidencePackAndModel(packId uuid.UUID, modelVersion string) (*domain.RiskAssessment, error) {
	assessment := domain.RiskAssessment{}
	err := pgxscan.Get(
		context.Background(), self.db, &assessment,
		`SELECT `+riskAssessmentColumns+` FROM risk_assessment WHERE evidence_pack_id = $1 AND model_version = $2`,
		packId, modelVersion,
	)
	if pgxscan.NotFound(err) {
		return nil, nil
	}
	return &assessment, err
}

func (self *riskAssessmentRepository) Save(assessment *domain.RiskAssessment) error {
	return self.db.QueryRow(
		context.Background(),
		`INSERT INTO risk_assessment (id, correlation_id, evidence_pack_id, model_version, factors, total, requires_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		assessment.ID, assessment.CorrelationId, assessment.EvidencePackId,
		assessment.ModelVersion, assessment.Factors, assessment.Total, assessment.RequiresReview,
	).Scan(&assessment.CreatedAt)
}
