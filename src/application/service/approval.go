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

type ApprovalService interface {
	WithQuerier(config.PgxIface) ApprovalService

	GetById(uuid.UUID) (*domain.CABApproval, error)
	GetAll(*repository.Page) ([]domain.CABApproval, error)
	// Submit opens a review request for a complete evidence pack.
	// Idempotent per open (intent, pack) pair.
	Submit(*domain.CABApproval) error
	// BeginReview moves pending to under_review and pins the approver.
	// Repeating it with the same approver is a no-op; once review has
	// begun the submitter cannot cancel and no other approver can take over.
	BeginReview(uuid.UUID, string) (*domain.CABApproval, error)
	// Decide writes a terminal status. Concurrent deciders are serialized
	// on the approval row; the loser observes the winner's terminal
	// status and gets an InvalidTransitionError.
	Decide(uuid.UUID, domain.ApprovalStatus, string, string, []domain.ApprovalCondition) (*domain.CABApproval, error)
}

type approvalService struct {
	logger                 zerolog.Logger
	db                     config.PgxIface
	approvalRepository     repository.ApprovalRepository
	evidencePackRepository repository.EvidencePackRepository
	events                 EventService
}

func NewApprovalService(db config.PgxIface, events EventService, logger *zerolog.Logger) ApprovalService {
	return &approvalService{
		logger:                 logger.With().Str("component", "ApprovalService").Logger(),
		db:                     db,
		approvalRepository:     persistence.NewApprovalRepository(db),
		evidencePackRepository: persistence.NewEvidencePackRepository(db),
		events:                 events,
	}
}

func (self *approvalService) WithQuerier(querier config.PgxIface) ApprovalService {
	return &approvalService{
		logger:                 self.logger,
		db:                     querier,
		approvalRepository:     self.approvalRepository.WithQuerier(querier),
		evidencePackRepository: self.evidencePackRepository.WithQuerier(querier),
		events:                 self.events.WithQuerier(querier),
	}
}

func (self *approvalService) GetById(id uuid.UUID) (*domain.CABApproval, error) {
	self.logger.Trace().Str("id", id.String()).Msg("Getting CABApproval by ID")
	approval, err := self.approvalRepository.GetById(id)
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not select existing CABApproval for ID %q", id)
	}
	if approval == nil {
		return nil, domain.NotFoundError{Kind: "CAB approval", ID: id}
	}
	return approval, nil
}

func (self *approvalService) GetAll(page *repository.Page) (approvals []domain.CABApproval, err error) {
	self.logger.Trace().Int("offset", page.Offset).Int("limit", page.Limit).Msg("Getting all CABApprovals")
	approvals, err = self.approvalRepository.GetAll(page)
	err = errors.WithMessagef(err, "Could not select existing CABApprovals with offset %d and limit %d", page.Offset, page.Limit)
	return
}

func (self *approvalService) Submit(approval *domain.CABApproval) error {
	self.logger.Trace().
		Str("deployment-intent-id", approval.DeploymentIntentId.String()).
		Str("evidence-pack-id", approval.EvidencePackId.String()).
		Msg("Submitting CABApproval")

	pack, err := self.evidencePackRepository.GetById(approval.EvidencePackId)
	if err != nil {
		return errors.WithMessagef(err, "Could not select EvidencePack %q", approval.EvidencePackId)
	}
	if pack == nil {
		return domain.NotFoundError{Kind: "evidence pack", ID: approval.EvidencePackId}
	}
	if missing := pack.MissingFields(); len(missing) > 0 {
		return domain.IncompleteEvidenceError{Missing: missing}
	}

	if existing, err := self.approvalRepository.GetOpenByIntentAndPack(approval.DeploymentIntentId, approval.EvidencePackId); err != nil {
		return errors.WithMessage(err, "Could not select open CABApproval")
	} else if existing != nil {
		*approval = *existing
		return nil
	}

	approval.ID = uuid.New()
	approval.Status = domain.ApprovalStatusPending
	approval.CorrelationId = pack.CorrelationId

	if err := pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		if err := self.approvalRepository.WithQuerier(tx).Save(approval); err != nil {
			return errors.WithMessage(err, "Could not insert CABApproval")
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: approval.CorrelationId,
			Type:          domain.EventApprovalSubmitted,
			SubjectId:     approval.ID,
			Payload: map[string]interface{}{
				"deployment_intent_id": approval.DeploymentIntentId.String(),
				"evidence_pack_id":     approval.EvidencePackId.String(),
			},
		})
	}); err != nil {
		return err
	}

	self.logger.Debug().Str("id", approval.ID.String()).Msg("Submitted CABApproval")
	return nil
}

func (self *approvalService) BeginReview(id uuid.UUID, approver string) (result *domain.CABApproval, err error) {
	self.logger.Trace().Str("id", id.String()).Str("approver", approver).Msg("Beginning CABApproval review")

	err = pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		approvals := self.approvalRepository.WithQuerier(tx)

		approval, err := approvals.GetByIdForUpdate(id)
		if err != nil {
			return errors.WithMessagef(err, "Could not select existing CABApproval for ID %q", id)
		}
		if approval == nil {
			return domain.NotFoundError{Kind: "CAB approval", ID: id}
		}

		if approval.Status == domain.ApprovalStatusUnderReview && approval.Approver == approver {
			result = approval
			return nil
		}
		if approval.Status != domain.ApprovalStatusPending {
			return domain.InvalidTransitionError{From: approval.Status, To: domain.ApprovalStatusUnderReview}
		}

		if marked, err := approvals.MarkUnderReview(id, approver); err != nil {
			return errors.WithMessage(err, "Could not mark CABApproval under review")
		} else if !marked {
			return domain.InvalidTransitionError{From: approval.Status, To: domain.ApprovalStatusUnderReview}
		}

		approval.Status = domain.ApprovalStatusUnderReview
		approval.Approver = approver
		result = approval

		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: approval.CorrelationId,
			Type:          domain.EventReviewStarted,
			SubjectId:     approval.ID,
			Payload:       map[string]interface{}{"approver": approver},
		})
	})
	if err != nil {
		return nil, err
	}

	self.logger.Debug().Str("id", id.String()).Str("approver", approver).Msg("CABApproval under review")
	return result, nil
}

func (self *approvalService) Decide(
	id uuid.UUID,
	status domain.ApprovalStatus,
	approver, rationale string,
	conditions []domain.ApprovalCondition,
) (result *domain.CABApproval, err error) {
	self.logger.Trace().Str("id", id.String()).Msg("Deciding CABApproval")

	if !status.Decided() {
		return nil, domain.InvalidTransitionError{From: domain.ApprovalStatusUnderReview, To: status}
	}

	err = pgx.BeginFunc(context.Background(), self.db, func(tx pgx.Tx) error {
		approvals := self.approvalRepository.WithQuerier(tx)

		approval, err := approvals.GetByIdForUpdate(id)
		if err != nil {
			return errors.WithMessagef(err, "Could not select existing CABApproval for ID %q", id)
		}
		if approval == nil {
			return domain.NotFoundError{Kind: "CAB approval", ID: id}
		}
		from := approval.Status
		if from != domain.ApprovalStatusUnderReview {
			return domain.InvalidTransitionError{From: from, To: status}
		}

		now := time.Now().UTC()
		approval.Status = status
		approval.Approver = approver
		approval.Rationale = rationale
		approval.Conditions = conditions
		approval.DecidedAt = &now

		if decided, err := approvals.Decide(approval, now); err != nil {
			return errors.WithMessage(err, "Could not decide CABApproval")
		} else if !decided {
			return domain.InvalidTransitionError{From: from, To: status}
		}
		result = approval

		statusStr, err := status.String()
		if err != nil {
			return err
		}
		return self.events.WithQuerier(tx).Append(&domain.Event{
			CorrelationId: approval.CorrelationId,
			Type:          domain.EventApprovalDecided,
			SubjectId:     approval.ID,
			Payload: map[string]interface{}{
				"status":   statusStr,
				"approver": approver,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	self.logger.Debug().Str("id", id.String()).Msg("Decided CABApproval")
	return result, nil
}
