package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
	"github.com/ringgate/ringgate/src/infrastructure/persistence"
)

type RiskService interface {
	WithQuerier(config.PgxIface) RiskService

	GetById(uuid.UUID) (*domain.RiskAssessment, error)
	// Compute scores the pack under the model active at call time and
	// persists the assessment with its ledger entry. Idempotent per
	// (pack, model version): a replay returns the stored assessment.
	Compute(uuid.UUID) (*domain.RiskAssessment, error)
}

type riskService struct {
	logger                   zerolog.Logger
	db                       config.PgxIface
	riskAssessmentRepository repository.RiskAssessmentRepository
	evidence                 EvidenceService
	events                   EventService
}

func NewRiskService(db config.PgxIface, evidence EvidenceService, events EventService, logger *zerolog.Logger) RiskService {
	return &riskService{
		logger:                   logger.With().Str("component", "RiskService").Logger(),
		db:                       db,
		riskAssessmentRepository: persistence.NewRiskAssessmentRepository(db),
		evidence:                 evidence,
		events:                   events,
	}
}

func (self *riskService) WithQuerier(querier config.PgxIface) RiskService {
	return &riskService{
		logger:                   self.logger,
		db:                       querier,
		riskAssessmentRepository: self.riskAssessmentRepository.WithQuerier(querier),
		evidence:                 self.evidence.WithQuerier(querier),
		events:                   self.events.WithQuerier(querier),
	}
}

func (self *riskService) GetById(id uuid.UUID) (*domain.RiskAssessment, error) {
	self.logger.Trace().Str("id", id.String()).Msg("Getting RiskAssessment by ID")
	assessment, err := self.riskAssessmentRepository.GetById(id)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not select existing RiskAssessment for ID %q", id)
	}
	if assessment == nil {
		return nil, domain.NotFoundError{Kind: "risk assessment", ID: id}
	}
	return assessment, nil
}

func (self *riskService) Compute(packId uuid.UUID) (*domain.RiskAssessment, error) {
	self.logger.Trace().Str("evidence-pack-id", packId.String()).Msg("Computing RiskAssessment")

	pack, err := self.evidence.GetById(packId)
	if err != nil {
		return nil, err
	}

	model := domain.DefaultRiskModel()

	if existing, err := self.riskAssessmentRepository.GetByEvidencePackAndModel(packId, model.Version); err != nil {
		return nil, errors.WithMessagef(err, "Could not select existing RiskAssessment for EvidencePack %q", packId)
	} else if existing != nil {
		return existing, nil
	}

	assessment, err := domain.ComputeRiskScore(*pack, model)
	if err != nil {
		return nil, err
	}
	assessment.ID = domain.NewAssessmentId(packId, model.Version)

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		if err := self.riskAssessmentRepository.WithQuerier(tx).Save(&assessment); err != nil {
			return errors.WithMessage(err, "Could not insert RiskAssessment")
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: assessment.CorrelationId,
			Type:          domain.EventRiskAssessed,
			SubjectId:     assessment.ID,
			Payload: map[string]interface{}{
				"model_version":   assessment.ModelVersion,
				"total":           assessment.Total,
				"requires_review": assessment.RequiresReview,
			},
		})
	}); err != nil {
		return nil, err
	}

	self.logger.Debug().
		Str("id", assessment.ID.String()).
		Float64("total", assessment.Total).
		Bool("requires-review", assessment.RequiresReview).
		Msg("Computed RiskAssessment")
	return &assessment, nil
}
