package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
	"github.com/ringgate/ringgate/src/domain/repository"
	"github.com/ringgate/ringgate/src/infrastructure/persistence"
)

type PolicyService interface {
	WithQuerier(config.PgxIface) PolicyService

	// Evaluate runs the promotion gate for one assessment and records
	// the outcome on the ledger. When the caller supplies no prior-ring
	// history the telemetry collaborator is consulted.
	Evaluate(context.Context, uuid.UUID, domain.RingContext) (domain.PolicyDecision, error)
}

type policyService struct {
	logger                   zerolog.Logger
	db                       config.PgxIface
	riskAssessmentRepository repository.RiskAssessmentRepository
	evidencePackRepository   repository.EvidencePackRepository
	approvalRepository       repository.ApprovalRepository
	exceptionRepository      repository.ExceptionRepository
	events                   EventService
	telemetry                TelemetryService
	metrics                  *config.Metrics
}

func NewPolicyService(db config.PgxIface, events EventService, telemetry TelemetryService, metrics *config.Metrics, logger *zerolog.Logger) PolicyService {
	return &policyService{
		logger:                   logger.With().Str("component", "PolicyService").Logger(),
		db:                       db,
		riskAssessmentRepository: persistence.NewRiskAssessmentRepository(db),
		evidencePackRepository:   persistence.NewEvidencePackRepository(db),
		approvalRepository:       persistence.NewApprovalRepository(db),
		exceptionRepository:      persistence.NewExceptionRepository(db),
		events:                   events,
		telemetry:                telemetry,
		metrics:                  metrics,
	}
}

func (self *policyService) WithQuerier(querier config.PgxIface) PolicyService {
	return &policyService{
		logger:                   self.logger,
		db:                       querier,
		riskAssessmentRepository: self.riskAssessmentRepository.WithQuerier(querier),
		evidencePackRepository:   self.evidencePackRepository.WithQuerier(querier),
		approvalRepository:       self.approvalRepository.WithQuerier(querier),
		exceptionRepository:      self.exceptionRepository.WithQuerier(querier),
		events:                   self.events.WithQuerier(querier),
		telemetry:                self.telemetry,
		metrics:                  self.metrics,
	}
}

func (self *policyService) Evaluate(ctx context.Context, assessmentId uuid.UUID, ring domain.RingContext) (decision domain.PolicyDecision, err error) {
	self.logger.Trace().Str("risk-assessment-id", assessmentId.String()).Msg("Evaluating policy")

	assessment, err := self.riskAssessmentRepository.GetById(assessmentId)
	if err != nil {
		return decision, errors.WithMessagef(err, "Could not select existing RiskAssessment for ID %q", assessmentId)
	}
	if assessment == nil {
		return decision, domain.NotFoundError{Kind: "risk assessment", ID: assessmentId}
	}

	pack, err := self.evidencePackRepository.GetById(assessment.EvidencePackId)
	if err != nil {
		return decision, errors.WithMessagef(err, "Could not select EvidencePack %q", assessment.EvidencePackId)
	}
	// The pack's rollback evidence is authoritative over what the caller claims.
	if pack != nil && pack.Rollback != nil {
		ring.RollbackPlan = pack.Rollback.State
	}

	approval, err := self.approvalRepository.GetLatestByEvidencePackId(assessment.EvidencePackId)
	if err != nil {
		return decision, errors.WithMessagef(err, "Could not select CABApproval for EvidencePack %q", assessment.EvidencePackId)
	}

	exceptions := []domain.Exception{}
	for _, rule := range []domain.PolicyRule{
		domain.RuleCABThreshold,
		domain.RuleCABApprovalMissing,
		domain.RulePriorRingSuccess,
		domain.RuleRollbackPlan,
	} {
		matching, err := self.exceptionRepository.GetByViolation(string(rule))
		if err != nil {
			return decision, errors.WithMessagef(err, "Could not select Exceptions for rule %q", rule)
		}
		exceptions = append(exceptions, matching...)
	}

	if ring.PriorRingSuccessRate == nil && ring.TargetRing > domain.RingLab {
		rate, err := self.telemetry.RingSuccessRate(ctx, ring.TargetRing-1)
		if err != nil {
			return decision, err
		}
		ring.PriorRingSuccessRate = rate
	}

	model := domain.DefaultRiskModel()
	now := time.Now().UTC()
	decision = domain.EvaluatePolicy(*assessment, ring, approval, exceptions, model, now)

	outcome := "allowed"
	if decision.Blocked {
		outcome = "blocked"
	}
	self.metrics.PolicyDecisions.WithLabelValues(outcome).Inc()

	payload := map[string]interface{}{
		"requires_cab": decision.RequiresCAB,
		"blocked":      decision.Blocked,
		"reasons":      decision.Reasons,
	}
	if len(decision.Suppressed) > 0 {
		payload["suppressed"] = decision.Suppressed
	}

	errorClass := domain.ErrorClassNone
	if decision.Blocked {
		errorClass = domain.ErrorClassPolicyViolation
	}

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		events := self.events.WithQuerier(tx)

		if err := events.Append(&domain.Event{
			CorrelationId: assessment.CorrelationId,
			Type:          domain.EventPolicyEvaluated,
			SubjectId:     assessment.ID,
			Payload:       payload,
			ErrorClass:    errorClass,
		}); err != nil {
			return err
		}

		if decision.Degraded && approval != nil {
			if recorded, err := self.degradationRecorded(assessment.CorrelationId, approval.ID); err != nil {
				return err
			} else if !recorded {
				return events.Append(&domain.Event{
					CorrelationId: assessment.CorrelationId,
					Type:          domain.EventApprovalDegraded,
					SubjectId:     approval.ID,
					Payload:       map[string]interface{}{"reason": "condition expired unmet"},
				})
			}
		}
		return nil
	}); err != nil {
		return decision, err
	}

	self.logger.Debug().
		Str("risk-assessment-id", assessmentId.String()).
		Str("outcome", outcome).
		Strs("reasons", decision.Reasons).
		Msg("Evaluated policy")
	return decision, nil
}

// degradationRecorded reports whether the ledger already carries a
// degradation entry for the approval, making the entry idempotent across
// repeated evaluations.
func (self *policyService) degradationRecorded(correlationId, approvalId uuid.UUID) (bool, error) {
	cursor := self.events.Query(correlationId)
	for {
		batch, err := cursor.Next()
		if err != nil {
			return false, err
		}
		if len(batch) == 0 {
			return false, nil
		}
		for _, event := range batch {
			if event.Type == domain.EventApprovalDegraded && event.SubjectId == approvalId {
				return true, nil
			}
		}
	}
}
